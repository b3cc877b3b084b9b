// Package config provides configuration management for the manubot citation pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "MANUBOT"

// Key styles for citation keys.
const (
	// KeyStyleShort derives an 8-character base62 key from the standard id.
	KeyStyleShort = "short"
	// KeyStyleOrdinal numbers references 1, 2, ... in first-seen order.
	KeyStyleOrdinal = "ordinal"
)

// Config holds all configuration for the citation pipeline.
type Config struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains metrics export settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Cache contains request cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Database contains PostgreSQL pool settings, used when the cache lives in PostgreSQL.
	Database DatabaseConfig `mapstructure:"database"`
	// Resolver contains resolution run settings.
	Resolver ResolverConfig `mapstructure:"resolver"`
	// Providers contains per-provider API settings.
	Providers ProvidersConfig `mapstructure:"providers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"oneof=stdout stderr"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// File is a path the CLI writes Prometheus text metrics to after a run.
	// Empty disables the export.
	File string `mapstructure:"file"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// CacheConfig holds request cache configuration.
type CacheConfig struct {
	// Location is a directory, a SQLite file, ":memory:", or a postgres:// URL.
	Location string `mapstructure:"location"`
	// Clear empties the cache before the run.
	Clear bool `mapstructure:"clear"`
}

// DatabaseConfig holds PostgreSQL pool configuration.
type DatabaseConfig struct {
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns" validate:"min=1"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns" validate:"min=0,ltefield=MaxConns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationAutoRun applies the cache schema when the store is opened.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// ResolverConfig holds resolution run configuration.
type ResolverConfig struct {
	// Concurrency bounds the number of identifiers fetched at once.
	Concurrency int `mapstructure:"concurrency" validate:"min=1,max=64"`
	// KeyStyle selects citation key generation (short, ordinal).
	KeyStyle string `mapstructure:"key_style" validate:"oneof=short ordinal"`
	// Validation selects the CSL validation mode (prune, strict, off).
	Validation string `mapstructure:"validation" validate:"oneof=prune strict off"`
	// ManualReferences is the path of a manual references file.
	ManualReferences string `mapstructure:"manual_references"`
	// Timeout bounds a whole run. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// ProvidersConfig holds settings shared by and specific to provider adapters.
type ProvidersConfig struct {
	// UserAgent is sent with every outbound request.
	UserAgent string `mapstructure:"user_agent" validate:"required"`
	// MaxRetries is the retry budget for 429 and 5xx responses.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0,max=10"`
	// DOI configures doi.org content negotiation.
	DOI ProviderConfig `mapstructure:"doi"`
	// PubMed configures NCBI E-utilities.
	PubMed PubMedConfig `mapstructure:"pubmed"`
	// PMC configures the NCBI literature citation exporter.
	PMC ProviderConfig `mapstructure:"pmc"`
	// ArXiv configures the arXiv API.
	ArXiv ProviderConfig `mapstructure:"arxiv"`
	// ISBN configures the OpenLibrary books API.
	ISBN ProviderConfig `mapstructure:"isbn"`
	// URL configures web page scraping.
	URL ProviderConfig `mapstructure:"url"`
}

// ProviderConfig holds configuration for a single provider adapter.
type ProviderConfig struct {
	// Enabled registers the adapter.
	Enabled bool `mapstructure:"enabled"`
	// BaseURL is the API endpoint. Empty uses the adapter's default.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gt=0"`
}

// PubMedConfig extends ProviderConfig with the NCBI API key.
type PubMedConfig struct {
	ProviderConfig `mapstructure:",squash"`
	// APIKey raises the NCBI rate limit. Loaded only from MANUBOT_NCBI_API_KEY.
	APIKey string `mapstructure:"-"`
}

// Options adjust how Load finds and overrides configuration.
type Options struct {
	// ConfigFile is an explicit config file path. Empty searches the default paths.
	ConfigFile string
	// EnvFile is a dotenv file loaded before the environment is read.
	// Empty means ".env"; a missing file is ignored.
	EnvFile string
	// Overrides are applied last, typically from command-line flags.
	Overrides map[string]any
}

// Load loads configuration from defaults, a config file, the environment
// and overrides, in increasing order of precedence.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("manubot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "manubot"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Providers.PubMed.APIKey = os.Getenv(EnvPrefix + "_NCBI_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.file", "")
	v.SetDefault("metrics.namespace", "manubot")

	// Cache defaults
	v.SetDefault("cache.location", "")
	v.SetDefault("cache.clear", false)

	// Database defaults
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_auto_run", true)

	// Resolver defaults
	v.SetDefault("resolver.concurrency", 8)
	v.SetDefault("resolver.key_style", KeyStyleShort)
	v.SetDefault("resolver.validation", "prune")
	v.SetDefault("resolver.manual_references", "")
	v.SetDefault("resolver.timeout", "0s")

	// Provider defaults
	v.SetDefault("providers.user_agent", "manubot-go (https://github.com/agitter/manubot)")
	v.SetDefault("providers.max_retries", 3)

	v.SetDefault("providers.doi.enabled", true)
	v.SetDefault("providers.doi.base_url", "https://doi.org")
	v.SetDefault("providers.doi.timeout", "30s")
	v.SetDefault("providers.doi.rate_limit", 10.0)

	v.SetDefault("providers.pubmed.enabled", true)
	v.SetDefault("providers.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("providers.pubmed.timeout", "30s")
	v.SetDefault("providers.pubmed.rate_limit", 3.0) // NCBI allows 3 req/sec without an API key

	v.SetDefault("providers.pmc.enabled", true)
	v.SetDefault("providers.pmc.base_url", "https://api.ncbi.nlm.nih.gov/lit/ctxp/v1/pmc")
	v.SetDefault("providers.pmc.timeout", "30s")
	v.SetDefault("providers.pmc.rate_limit", 3.0)

	v.SetDefault("providers.arxiv.enabled", true)
	v.SetDefault("providers.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("providers.arxiv.timeout", "30s")
	v.SetDefault("providers.arxiv.rate_limit", 1.0)

	v.SetDefault("providers.isbn.enabled", true)
	v.SetDefault("providers.isbn.base_url", "https://openlibrary.org")
	v.SetDefault("providers.isbn.timeout", "30s")
	v.SetDefault("providers.isbn.rate_limit", 5.0)

	v.SetDefault("providers.url.enabled", true)
	v.SetDefault("providers.url.timeout", "30s")
	v.SetDefault("providers.url.rate_limit", 5.0)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %q fails %q", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return err
	}

	if c.Resolver.ManualReferences != "" {
		switch strings.ToLower(filepath.Ext(c.Resolver.ManualReferences)) {
		case ".json", ".yaml", ".yml":
		default:
			return fmt.Errorf("manual references %q must be .json, .yaml or .yml", c.Resolver.ManualReferences)
		}
	}

	return nil
}

// IsPostgresLocation reports whether a cache location names a PostgreSQL database.
func IsPostgresLocation(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}
