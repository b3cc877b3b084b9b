package observability

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string

	// Format is the output format (json, console, pretty).
	Format string

	// Output is the output destination (stdout, stderr).
	Output string

	// AddSource adds source file and line number to log entries.
	AddSource bool

	// TimeFormat is the time format for timestamps.
	TimeFormat string

	// Writer overrides Output when set.
	Writer io.Writer
}

// DefaultLoggingConfig returns a LoggingConfig with sensible defaults.
// Logs go to stderr so stdout stays free for command output.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	// Pick the destination; an explicit Writer wins
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stderr
	}
	if cfg.Writer != nil {
		output = cfg.Writer
	}

	// Timestamp layout is process-wide in zerolog
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	// Human-readable output for terminals; colors off when captured
	if format := strings.ToLower(cfg.Format); format == "console" || format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: zerolog.TimeFieldFormat,
			NoColor:    cfg.Writer != nil,
		}
	}

	logger := zerolog.New(output).With().Timestamp()

	// Caller adds file:line to each event
	if cfg.AddSource {
		logger = logger.Caller()
	}

	log := logger.Logger()

	// Apply the level globally and to this logger
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	log = log.Level(level)

	return log
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// ErrorCounter is a zerolog hook that counts events logged at error level
// or above. The CLI consults it to decide its exit status.
type ErrorCounter struct {
	n atomic.Int64
}

// Run implements zerolog.Hook.
func (c *ErrorCounter) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	// NoLevel and Disabled sort above PanicLevel
	if level >= zerolog.ErrorLevel && level < zerolog.NoLevel {
		c.n.Add(1)
	}
}

// Count returns the number of error events seen so far.
func (c *ErrorCounter) Count() int64 {
	return c.n.Load()
}

// WithRunContext adds resolution run fields to a logger.
func WithRunContext(logger zerolog.Logger, runID, command string) zerolog.Logger {
	return logger.With().
		Str("run_id", runID).
		Str("command", command).
		Logger()
}

// WithIdentifierContext adds citation fields to a logger.
func WithIdentifierContext(logger zerolog.Logger, citation, provider string) zerolog.Logger {
	return logger.With().
		Str("citation", citation).
		Str("provider", provider).
		Logger()
}

// WithCacheContext adds cache fields to a logger.
func WithCacheContext(logger zerolog.Logger, backend, fingerprint string) zerolog.Logger {
	return logger.With().
		Str("cache_backend", backend).
		Str("fingerprint", fingerprint).
		Logger()
}
