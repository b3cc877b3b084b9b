package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agitter/manubot/internal/config"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/observability"
	"github.com/agitter/manubot/internal/providers"
)

func enabled(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{Enabled: true, BaseURL: baseURL, Timeout: 5 * time.Second, RateLimit: 100}
}

func TestRegistry(t *testing.T) {
	t.Run("all providers", func(t *testing.T) {
		reg := Registry(config.ProvidersConfig{
			UserAgent: "test-agent",
			DOI:       enabled(""),
			PubMed:    config.PubMedConfig{ProviderConfig: enabled(""), APIKey: "secret"},
			PMC:       enabled(""),
			ArXiv:     enabled(""),
			ISBN:      enabled(""),
			URL:       enabled(""),
		}, Options{})

		assert.Equal(t, len(domain.AllProviders), reg.Len())
		for _, p := range domain.AllProviders {
			adapter, err := reg.Lookup(p)
			require.NoError(t, err, p)
			assert.Equal(t, p, adapter.Provider())
		}
	})

	t.Run("disabled providers", func(t *testing.T) {
		reg := Registry(config.ProvidersConfig{UserAgent: "test-agent", ArXiv: enabled("")}, Options{})

		assert.Equal(t, []domain.Provider{domain.ProviderArXiv, domain.ProviderRaw}, reg.Providers())
		_, err := reg.Lookup(domain.ProviderDOI)
		assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	})
}

func TestRegistry_WiresHTTPClient(t *testing.T) {
	var userAgent string
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		userAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	reg := Registry(config.ProvidersConfig{
		UserAgent:  "test-agent",
		MaxRetries: 0,
		DOI:        enabled(server.URL),
	}, Options{Metrics: metrics})

	_, err := providers.Fetch(context.Background(), reg.Get(domain.ProviderDOI), identifier.MustParse("doi:10.1000/abc"))
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 1, calls, "max_retries 0 disables retrying")
	assert.Equal(t, "test-agent", userAgent)
}

func TestRegistry_URLClock(t *testing.T) {
	day := time.Date(2023, 1, 2, 12, 0, 0, 0, time.UTC)
	reg := Registry(config.ProvidersConfig{URL: enabled("")}, Options{Clock: func() time.Time { return day }})

	id := identifier.MustParse("https://example.org/")
	item, err := reg.Get(domain.ProviderURL).Transform(id, []byte(`<html><head><title>Example</title></head></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Example", item.Title())
	assert.Equal(t, map[string]any{"date-parts": []any{[]any{2023, 1, 2}}}, item["accessed"])
}
