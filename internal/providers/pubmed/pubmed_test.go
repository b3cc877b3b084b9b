package pubmed

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

const efetchResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<!DOCTYPE PubmedArticleSet PUBLIC "-//NLM//DTD PubMedArticle, 1st January 2019//EN" "https://dtd.nlm.nih.gov/ncbi/pubmed/out/pubmed_190101.dtd">
<PubmedArticleSet>
	<PubmedArticle>
		<MedlineCitation Status="MEDLINE" Owner="NLM">
			<PMID Version="1">12345678</PMID>
			<Article PubModel="Print-Electronic">
				<Journal>
					<ISSN IssnType="Electronic">1234-5678</ISSN>
					<JournalIssue CitedMedium="Internet">
						<Volume>25</Volume>
						<Issue>3</Issue>
						<PubDate>
							<Year>2023</Year>
							<Month>Mar</Month>
							<Day>15</Day>
						</PubDate>
					</JournalIssue>
					<Title>Journal of Testing</Title>
					<ISOAbbreviation>J Test</ISOAbbreviation>
				</Journal>
				<ArticleTitle>CRISPR-Cas9 Gene Editing in Biomedical Research.</ArticleTitle>
				<Pagination>
					<MedlinePgn>123-145</MedlinePgn>
				</Pagination>
				<ELocationID EIdType="doi" ValidYN="Y">10.1234/TEST.2023.001</ELocationID>
				<Abstract>
					<AbstractText Label="BACKGROUND">Gene editing technologies have revolutionized research.</AbstractText>
					<AbstractText Label="RESULTS">Editing efficiency improved.</AbstractText>
				</Abstract>
				<AuthorList CompleteYN="Y">
					<Author ValidYN="Y">
						<LastName>Smith</LastName>
						<ForeName>John A</ForeName>
						<Initials>JA</Initials>
					</Author>
					<Author ValidYN="Y">
						<LastName>Johnson</LastName>
						<Initials>E</Initials>
						<Suffix>Jr</Suffix>
					</Author>
					<Author ValidYN="Y">
						<CollectiveName>CRISPR Research Consortium</CollectiveName>
					</Author>
				</AuthorList>
				<Language>eng</Language>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList>
				<ArticleId IdType="pubmed">12345678</ArticleId>
				<ArticleId IdType="doi">10.1234/test.2023.001</ArticleId>
				<ArticleId IdType="pmc">PMC9876543</ArticleId>
			</ArticleIdList>
		</PubmedData>
	</PubmedArticle>
</PubmedArticleSet>`

const efetchErrorXML = `<?xml version="1.0" encoding="UTF-8" ?>
<eFetchResult>
	<ERROR>ID list is empty! Possibly it has no correct IDs.</ERROR>
</eFetchResult>`

func TestClient_Retrieve(t *testing.T) {
	t.Run("fetches efetch XML", func(t *testing.T) {
		var gotQuery map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/efetch.fcgi", r.URL.Path)
			q := r.URL.Query()
			gotQuery = map[string]string{
				"db":      q.Get("db"),
				"id":      q.Get("id"),
				"retmode": q.Get("retmode"),
				"api_key": q.Get("api_key"),
			}
			w.Header().Set("Content-Type", "text/xml")
			w.Write([]byte(efetchResponseXML))
		}))
		defer server.Close()

		client := createTestClient(server.URL, "secret")
		payload, err := client.Retrieve(context.Background(), identifier.MustParse("pmid:12345678"))
		require.NoError(t, err)
		assert.Equal(t, efetchResponseXML, string(payload))

		assert.Equal(t, map[string]string{
			"db":      "pubmed",
			"id":      "12345678",
			"retmode": "xml",
			"api_key": "secret",
		}, gotQuery)
	})

	t.Run("omits api key when not configured", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.False(t, r.URL.Query().Has("api_key"))
			w.Write([]byte(efetchResponseXML))
		}))
		defer server.Close()

		_, err := createTestClient(server.URL, "").Retrieve(context.Background(), identifier.MustParse("pmid:12345678"))
		require.NoError(t, err)
	})

	t.Run("unknown PMID", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(efetchErrorXML))
		}))
		defer server.Close()

		_, err := createTestClient(server.URL, "").Retrieve(context.Background(), identifier.MustParse("pmid:999999999999"))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrIdentifierNotFound)
	})

	t.Run("empty article set", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<PubmedArticleSet></PubmedArticleSet>`))
		}))
		defer server.Close()

		_, err := createTestClient(server.URL, "").Retrieve(context.Background(), identifier.MustParse("pmid:1"))
		assert.ErrorIs(t, err, domain.ErrIdentifierNotFound)
	})

	t.Run("broken XML", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<PubmedArticleSet><PubmedArticle>`))
		}))
		defer server.Close()

		_, err := createTestClient(server.URL, "").Retrieve(context.Background(), identifier.MustParse("pmid:1"))
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := createTestClient(server.URL, "").Retrieve(context.Background(), identifier.MustParse("pmid:1"))
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestClient_Transform(t *testing.T) {
	client := New(Config{})
	item, err := client.Transform(identifier.MustParse("pmid:12345678"), []byte(efetchResponseXML))
	require.NoError(t, err)

	assert.Equal(t, "pmid:12345678", item.ID())
	assert.Equal(t, "article-journal", item.Type())
	assert.Equal(t, "CRISPR-Cas9 Gene Editing in Biomedical Research", item.Title())
	assert.Equal(t, "Journal of Testing", item["container-title"])
	assert.Equal(t, "J Test", item["container-title-short"])
	assert.Equal(t, "1234-5678", item["ISSN"])
	assert.Equal(t, "25", item["volume"])
	assert.Equal(t, "3", item["issue"])
	assert.Equal(t, "123-145", item["page"])
	assert.Equal(t, "10.1234/test.2023.001", item["DOI"])
	assert.Equal(t, "12345678", item["PMID"])
	assert.Equal(t, "PMC9876543", item["PMCID"])
	assert.Equal(t, "eng", item["language"])
	assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pubmed/12345678/", item["URL"])
	assert.Equal(t, "BACKGROUND: Gene editing technologies have revolutionized research. RESULTS: Editing efficiency improved.", item["abstract"])
	assert.Equal(t, csl.DateParts(2023, 3, 15), item["issued"])

	authors, ok := item["author"].([]any)
	require.True(t, ok)
	require.Len(t, authors, 3)
	assert.Equal(t, map[string]any{"family": "Smith", "given": "John A"}, authors[0])
	assert.Equal(t, map[string]any{"family": "Johnson", "given": "E", "suffix": "Jr"}, authors[1])
	assert.Equal(t, map[string]any{"literal": "CRISPR Research Consortium"}, authors[2])

	assert.Empty(t, csl.DefaultSchema().Validate(item))
}

func TestExtractIssued(t *testing.T) {
	tests := []struct {
		name     string
		date     PubDate
		expected map[string]any
	}{
		{name: "full date", date: PubDate{Year: "2020", Month: "12", Day: "01"}, expected: csl.DateParts(2020, 12, 1)},
		{name: "named month", date: PubDate{Year: "2019", Month: "September"}, expected: csl.DateParts(2019, 9)},
		{name: "year only", date: PubDate{Year: "2018"}, expected: csl.DateParts(2018)},
		{name: "medline range", date: PubDate{MedlineDate: "2020 Jan-Feb"}, expected: csl.DateParts(2020, 1)},
		{name: "medline season", date: PubDate{MedlineDate: "2017 Spring"}, expected: csl.DateParts(2017)},
		{name: "medline year span", date: PubDate{MedlineDate: "1998-1999"}, expected: csl.DateParts(1998)},
		{name: "day without month ignored", date: PubDate{Year: "2021", Day: "5"}, expected: csl.DateParts(2021)},
		{name: "missing", date: PubDate{}, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractIssued(tt.date))
		})
	}
}

func TestExtractPages(t *testing.T) {
	assert.Equal(t, "", extractPages(nil))
	assert.Equal(t, "e100", extractPages(&Pagination{MedlinePgn: "e100"}))
	assert.Equal(t, "10-20", extractPages(&Pagination{StartPage: "10", EndPage: "20"}))
	assert.Equal(t, "10", extractPages(&Pagination{StartPage: "10", EndPage: "10"}))
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)

	withKey := Config{APIKey: "k", BaseURL: "http://localhost/eutils/"}
	withKey.applyDefaults()
	assert.Equal(t, APIKeyRateLimit, withKey.RateLimit)
	assert.Equal(t, "http://localhost/eutils", withKey.BaseURL)
}

func createTestClient(baseURL, apiKey string) *Client {
	httpClient := providers.NewHTTPClient(providers.HTTPClientConfig{
		Provider:   sourceName,
		RateLimit:  100,
		MaxRetries: providers.NoRetries,
		RetryDelay: time.Millisecond,
	})
	return NewWithHTTPClient(Config{BaseURL: baseURL, APIKey: apiKey}, httpClient)
}
