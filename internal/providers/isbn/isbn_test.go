package isbn

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

const booksResponse = `{
	"ISBN:9780262517638": {
		"url": "https://openlibrary.org/books/OL25440567M/Open_Access",
		"title": "Open Access",
		"subtitle": "The Essential Knowledge Series",
		"authors": [{"url": "https://openlibrary.org/authors/OL1A", "name": "Peter Suber"}],
		"publishers": [{"name": "MIT Press"}],
		"publish_places": [{"name": "Cambridge, Mass"}],
		"publish_date": "July 2012",
		"number_of_pages": 230
	}
}`

func TestClient_Retrieve(t *testing.T) {
	id := identifier.MustParse("isbn:9780262517638")

	t.Run("requests data view", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/books", r.URL.Path)
			assert.Equal(t, "ISBN:9780262517638", r.URL.Query().Get("bibkeys"))
			assert.Equal(t, "data", r.URL.Query().Get("jscmd"))
			w.Write([]byte(booksResponse))
		}))
		defer server.Close()

		payload, err := createTestClient(server.URL).Retrieve(context.Background(), id)
		require.NoError(t, err)
		assert.JSONEq(t, booksResponse, string(payload))
	})

	t.Run("unknown ISBN", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		_, err := createTestClient(server.URL).Retrieve(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrIdentifierNotFound)
	})

	t.Run("garbage", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}))
		defer server.Close()

		_, err := createTestClient(server.URL).Retrieve(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	})
}

func TestClient_Transform(t *testing.T) {
	id := identifier.MustParse("isbn:9780262517638")
	item, err := New(Config{}).Transform(id, []byte(booksResponse))
	require.NoError(t, err)

	assert.Equal(t, "isbn:9780262517638", item.ID())
	assert.Equal(t, "book", item.Type())
	assert.Equal(t, "Open Access: The Essential Knowledge Series", item.Title())
	assert.Equal(t, "9780262517638", item["ISBN"])
	assert.Equal(t, "MIT Press", item["publisher"])
	assert.Equal(t, "Cambridge, Mass", item["publisher-place"])
	assert.Equal(t, "230", item["number-of-pages"])
	assert.Equal(t, csl.DateParts(2012), item["issued"])
	assert.Equal(t, []any{map[string]any{"family": "Suber", "given": "Peter"}}, item["author"])
	assert.Empty(t, csl.DefaultSchema().Validate(item))
}

func TestPublishDate(t *testing.T) {
	assert.Equal(t, csl.DateParts(2004, 3, 1), publishDate("2004-03-01"))
	assert.Equal(t, csl.DateParts(1999), publishDate("c1999"))
	assert.Equal(t, csl.DateParts(2012), publishDate("July 2012"))
	assert.Equal(t, map[string]any{"literal": "unknown"}, publishDate("unknown"))
	assert.Nil(t, publishDate(""))
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
