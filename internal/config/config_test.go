package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate clears MANUBOT_ variables and points the config search away from
// the developer's home directory.
func isolate(t *testing.T) Options {
	t.Helper()
	clearEnvVars(t)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return Options{EnvFile: filepath.Join(dir, "missing.env")}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(isolate(t))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)

	// Metrics defaults
	assert.Equal(t, "manubot", cfg.Metrics.Namespace)
	assert.Empty(t, cfg.Metrics.File)

	// Cache defaults
	assert.Empty(t, cfg.Cache.Location)
	assert.False(t, cfg.Cache.Clear)

	// Database defaults
	assert.Equal(t, int32(8), cfg.Database.MaxConns)
	assert.Equal(t, time.Hour, cfg.Database.MaxConnLifetime)
	assert.True(t, cfg.Database.MigrationAutoRun)

	// Resolver defaults
	assert.Equal(t, 8, cfg.Resolver.Concurrency)
	assert.Equal(t, KeyStyleShort, cfg.Resolver.KeyStyle)
	assert.Equal(t, "prune", cfg.Resolver.Validation)
	assert.Zero(t, cfg.Resolver.Timeout)

	// Provider defaults
	assert.Equal(t, 3, cfg.Providers.MaxRetries)
	assert.True(t, cfg.Providers.DOI.Enabled)
	assert.Equal(t, "https://doi.org", cfg.Providers.DOI.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Providers.DOI.Timeout)
	assert.True(t, cfg.Providers.PubMed.Enabled)
	assert.Equal(t, 3.0, cfg.Providers.PubMed.RateLimit)
	assert.Empty(t, cfg.Providers.PubMed.APIKey)
	assert.Equal(t, "https://export.arxiv.org/api", cfg.Providers.ArXiv.BaseURL)
	assert.True(t, cfg.Providers.URL.Enabled)
	assert.Empty(t, cfg.Providers.URL.BaseURL)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	opts := isolate(t)

	t.Setenv("MANUBOT_LOGGING_LEVEL", "debug")
	t.Setenv("MANUBOT_CACHE_LOCATION", ":memory:")
	t.Setenv("MANUBOT_RESOLVER_CONCURRENCY", "2")
	t.Setenv("MANUBOT_RESOLVER_KEY_STYLE", "ordinal")
	t.Setenv("MANUBOT_PROVIDERS_PUBMED_ENABLED", "false")
	t.Setenv("MANUBOT_PROVIDERS_DOI_TIMEOUT", "5s")
	t.Setenv("MANUBOT_NCBI_API_KEY", "ncbi-secret")

	cfg, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":memory:", cfg.Cache.Location)
	assert.Equal(t, 2, cfg.Resolver.Concurrency)
	assert.Equal(t, KeyStyleOrdinal, cfg.Resolver.KeyStyle)
	assert.False(t, cfg.Providers.PubMed.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Providers.DOI.Timeout)
	assert.Equal(t, "ncbi-secret", cfg.Providers.PubMed.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	opts := isolate(t)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := `
resolver:
  concurrency: 4
  validation: strict
providers:
  pubmed:
    api_key: from-file
  isbn:
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	opts.ConfigFile = path

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Resolver.Concurrency)
	assert.Equal(t, "strict", cfg.Resolver.Validation)
	assert.False(t, cfg.Providers.ISBN.Enabled)
	// secrets never come from files
	assert.Empty(t, cfg.Providers.PubMed.APIKey)
}

func TestLoad_ConfigFileSearchPath(t *testing.T) {
	opts := isolate(t)

	require.NoError(t, os.WriteFile("manubot.yaml", []byte("resolver:\n  key_style: ordinal\n"), 0o600))

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, KeyStyleOrdinal, cfg.Resolver.KeyStyle)
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	opts := isolate(t)
	opts.ConfigFile = filepath.Join(t.TempDir(), "nope.yaml")

	_, err := Load(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_Overrides(t *testing.T) {
	opts := isolate(t)
	t.Setenv("MANUBOT_RESOLVER_CONCURRENCY", "2")
	opts.Overrides = map[string]any{
		"resolver.concurrency": 16,
		"cache.clear":          true,
		"metrics.file":         "metrics.prom",
	}

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Resolver.Concurrency)
	assert.True(t, cfg.Cache.Clear)
	assert.Equal(t, "metrics.prom", cfg.Metrics.File)
}

func TestLoad_DotEnv(t *testing.T) {
	opts := isolate(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MANUBOT_NCBI_API_KEY=from-dotenv\n"), 0o600))
	opts.EnvFile = envFile
	t.Cleanup(func() { os.Unsetenv("MANUBOT_NCBI_API_KEY") })

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Providers.PubMed.APIKey)
}

func TestLoad_InvalidValue(t *testing.T) {
	opts := isolate(t)
	t.Setenv("MANUBOT_RESOLVER_KEY_STYLE", "random")

	_, err := Load(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Contains(t, err.Error(), "KeyStyle")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectedErr string
	}{
		{
			name:        "zero concurrency",
			modifyFunc:  func(c *Config) { c.Resolver.Concurrency = 0 },
			expectedErr: "Resolver.Concurrency",
		},
		{
			name:        "excessive concurrency",
			modifyFunc:  func(c *Config) { c.Resolver.Concurrency = 1000 },
			expectedErr: "Resolver.Concurrency",
		},
		{
			name:        "unknown validation mode",
			modifyFunc:  func(c *Config) { c.Resolver.Validation = "lenient" },
			expectedErr: "Resolver.Validation",
		},
		{
			name:        "unknown log level",
			modifyFunc:  func(c *Config) { c.Logging.Level = "verbose" },
			expectedErr: "Logging.Level",
		},
		{
			name:        "bad base url",
			modifyFunc:  func(c *Config) { c.Providers.DOI.BaseURL = "not a url" },
			expectedErr: "Providers.DOI.BaseURL",
		},
		{
			name:        "zero rate limit",
			modifyFunc:  func(c *Config) { c.Providers.ArXiv.RateLimit = 0 },
			expectedErr: "Providers.ArXiv.RateLimit",
		},
		{
			name: "min conns above max conns",
			modifyFunc: func(c *Config) {
				c.Database.MaxConns = 2
				c.Database.MinConns = 4
			},
			expectedErr: "Database.MinConns",
		},
		{
			name:        "manual references extension",
			modifyFunc:  func(c *Config) { c.Resolver.ManualReferences = "refs.bib" },
			expectedErr: "must be .json, .yaml or .yml",
		},
		{
			name:        "missing user agent",
			modifyFunc:  func(c *Config) { c.Providers.UserAgent = "" },
			expectedErr: "Providers.UserAgent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			require.NoError(t, cfg.Validate())
			tt.modifyFunc(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestIsPostgresLocation(t *testing.T) {
	assert.True(t, IsPostgresLocation("postgres://u:p@localhost/db"))
	assert.True(t, IsPostgresLocation("postgresql://localhost/db"))
	assert.False(t, IsPostgresLocation("/tmp/cache"))
	assert.False(t, IsPostgresLocation(":memory:"))
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(key, EnvPrefix+"_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

// validConfig returns a valid configuration for testing
func validConfig() *Config {
	provider := ProviderConfig{Enabled: true, Timeout: 30 * time.Second, RateLimit: 5}
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Metrics: MetricsConfig{Namespace: "manubot"},
		Database: DatabaseConfig{
			MaxConns: 8,
			MinConns: 0,
		},
		Resolver: ResolverConfig{
			Concurrency: 8,
			KeyStyle:    KeyStyleShort,
			Validation:  "prune",
		},
		Providers: ProvidersConfig{
			UserAgent:  "manubot-test",
			MaxRetries: 3,
			DOI:        provider,
			PubMed:     PubMedConfig{ProviderConfig: provider},
			PMC:        provider,
			ArXiv:      provider,
			ISBN:       provider,
			URL:        provider,
		},
	}
}
