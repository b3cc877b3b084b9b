package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	t.Run("json to writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LoggingConfig{Level: "debug", Format: "json", Writer: &buf})
		logger.Debug().Str("k", "v").Msg("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "debug", entry["level"])
		assert.Equal(t, "v", entry["k"])
		assert.Equal(t, "hello", entry["message"])
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LoggingConfig{Level: "warn", Format: "json", Writer: &buf})
		logger.Info().Msg("dropped")
		assert.Empty(t, buf.String())
	})

	t.Run("console format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LoggingConfig{Level: "info", Format: "console", Writer: &buf})
		logger.Info().Msg("readable")
		assert.Contains(t, buf.String(), "readable")
	})

	t.Run("stdout and stderr", func(t *testing.T) {
		assert.NotEqual(t, zerolog.Logger{}, NewLogger(LoggingConfig{Output: "stdout"}))
		assert.NotEqual(t, zerolog.Logger{}, NewLogger(LoggingConfig{Output: "stderr", Format: "pretty"}))
	})

	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestErrorCounter(t *testing.T) {
	counter := &ErrorCounter{}
	logger := zerolog.New(&bytes.Buffer{}).Hook(counter)

	logger.Info().Msg("fine")
	logger.Warn().Msg("careful")
	assert.Equal(t, int64(0), counter.Count())

	logger.Error().Msg("broken")
	logger.Error().Msg("broken again")
	assert.Equal(t, int64(2), counter.Count())

	logger.Log().Msg("no level")
	assert.Equal(t, int64(2), counter.Count())
}

func TestWithRunContext(t *testing.T) {
	var buf bytes.Buffer
	enriched := WithRunContext(zerolog.New(&buf), "run-123", "process")
	enriched.Info().Msg("test message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-123", entry["run_id"])
	assert.Equal(t, "process", entry["command"])
	assert.Equal(t, "test message", entry["message"])
}

func TestWithIdentifierContext(t *testing.T) {
	var buf bytes.Buffer
	enriched := WithIdentifierContext(zerolog.New(&buf), "doi:10.1000/abc", "doi")
	enriched.Info().Msg("resolved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "doi:10.1000/abc", entry["citation"])
	assert.Equal(t, "doi", entry["provider"])
}

func TestWithCacheContext(t *testing.T) {
	var buf bytes.Buffer
	enriched := WithCacheContext(zerolog.New(&buf), "sqlite", "abc123")
	enriched.Warn().Msg("corrupt")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sqlite", entry["cache_backend"])
	assert.Equal(t, "abc123", entry["fingerprint"])
}
