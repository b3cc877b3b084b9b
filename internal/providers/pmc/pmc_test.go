package pmc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/providers"
)

const exportResponse = `{
	"source": "PMC",
	"accessed": {"date-parts": [[2024, 1, 2]]},
	"id": "pmc:PMC3041534",
	"title": "Open access to the scientific journal literature",
	"author": [{"family": "Björk", "given": "Bo-Christer"}],
	"container-title": "PLoS ONE",
	"issued": {"date-parts": [[2010, 6, 23]]},
	"DOI": "10.1371/journal.pone.0011273",
	"type": "article-journal",
	"PMID": "20585653"
}`

func TestClient_Retrieve(t *testing.T) {
	t.Run("requests csl format", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "csl", r.URL.Query().Get("format"))
			assert.Equal(t, "PMC3041534", r.URL.Query().Get("id"))
			w.Write([]byte(exportResponse))
		}))
		defer server.Close()

		payload, err := createTestClient(server.URL).Retrieve(context.Background(), identifier.MustParse("pmcid:PMC3041534"))
		require.NoError(t, err)
		assert.JSONEq(t, exportResponse, string(payload))
	})

	t.Run("error body with status 200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"error","code":"400","message":"ID not found"}`))
		}))
		defer server.Close()

		_, err := createTestClient(server.URL).Retrieve(context.Background(), identifier.MustParse("pmcid:PMC1"))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrIdentifierNotFound)
		assert.Contains(t, err.Error(), "ID not found")
	})

	t.Run("not found status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := createTestClient(server.URL).Retrieve(context.Background(), identifier.MustParse("pmcid:PMC1"))
		assert.ErrorIs(t, err, domain.ErrIdentifierNotFound)
	})
}

func TestClient_Transform(t *testing.T) {
	client := New(Config{})
	id := identifier.MustParse("pmcid:PMC3041534")

	item, err := client.Transform(id, []byte(exportResponse))
	require.NoError(t, err)

	assert.Equal(t, "pmcid:PMC3041534", item.ID())
	assert.Equal(t, "PMC3041534", item["PMCID"])
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC3041534/", item["URL"])
	assert.NotContains(t, item, "source")
	assert.Empty(t, csl.DefaultSchema().Validate(item))

	_, err = client.Transform(id, []byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestClient_Metadata(t *testing.T) {
	client := New(Config{BaseURL: "https://example.org/pmc/"})
	assert.Equal(t, domain.ProviderPMCID, client.Provider())
	assert.Equal(t, Version, client.Version())
	assert.Equal(t, "https://example.org/pmc", client.config.BaseURL)
}

func createTestClient(baseURL string) *Client {
	httpClient := providers.NewHTTPClient(providers.HTTPClientConfig{
		Provider:   sourceName,
		RateLimit:  100,
		MaxRetries: providers.NoRetries,
		RetryDelay: time.Millisecond,
	})
	return NewWithHTTPClient(Config{BaseURL: baseURL}, httpClient)
}
