// Package pubmed resolves PubMed identifiers through the NCBI E-utilities
// efetch endpoint and converts the MEDLINE XML record to CSL-JSON.
//
// The E-utilities API documentation is available at:
// https://www.ncbi.nlm.nih.gov/books/NBK25499/
package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/providers"
)

const (
	// Version tags cached PubMed payloads.
	Version = "1"

	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// APIKeyRateLimit is the rate limit with an API key.
	APIKeyRateLimit = 10.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// ArticleURL is the landing page prefix of a PubMed record.
	ArticleURL = "https://www.ncbi.nlm.nih.gov/pubmed/"

	sourceName = "pmid"
)

// Config holds the configuration for the PubMed adapter.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits. Optional.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to
	// DefaultRateLimit, or APIKeyRateLimit when an API key is set.
	RateLimit float64
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
		if c.APIKey != "" {
			c.RateLimit = APIKeyRateLimit
		}
	}
}

// Client implements providers.Fetchable for PMIDs.
type Client struct {
	config     Config
	httpClient *providers.HTTPClient
}

var _ providers.Fetchable = (*Client)(nil)

// New creates a PubMed adapter with its own HTTP client.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config: cfg,
		httpClient: providers.NewHTTPClient(providers.HTTPClientConfig{
			Provider:  sourceName,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
		}),
	}
}

// NewWithHTTPClient creates a PubMed adapter using httpClient.
func NewWithHTTPClient(cfg Config, httpClient *providers.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Provider returns domain.ProviderPMID.
func (c *Client) Provider() domain.Provider { return domain.ProviderPMID }

// Version returns the payload version.
func (c *Client) Version() string { return Version }

// Retrieve fetches the efetch XML for the PMID. A response without a
// PubmedArticle is reported as not found so it never reaches the cache.
func (c *Client) Retrieve(ctx context.Context, id identifier.Identifier) ([]byte, error) {
	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", id.Value)
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	body, err := providers.Get(ctx, c.httpClient, id, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if _, err := c.article(id, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Transform converts the efetch XML to a CSL item.
func (c *Client) Transform(id identifier.Identifier, payload []byte) (csl.Item, error) {
	article, err := c.article(id, payload)
	if err != nil {
		return nil, err
	}
	return articleToItem(id, article), nil
}

// article decodes payload and returns the record for id.
func (c *Client) article(id identifier.Identifier, payload []byte) (Article, error) {
	var set ArticleSet
	if err := xml.Unmarshal(payload, &set); err != nil {
		return Article{}, providers.Malformed(sourceName, id, fmt.Errorf("failed to parse XML response: %w", err))
	}
	for _, a := range set.Articles {
		if strings.TrimSpace(a.MedlineCitation.PMID) == id.Value {
			return a, nil
		}
	}
	return Article{}, domain.NewNotFoundError("pubmed record", id.Value)
}

// articleToItem converts a PubMed article to a CSL item.
func articleToItem(id identifier.Identifier, article Article) csl.Item {
	info := article.MedlineCitation.Article
	journal := info.Journal
	item := csl.Item{
		"id":   id.String(),
		"type": "article-journal",
		"PMID": id.Value,
		"URL":  ArticleURL + id.Value + "/",
	}

	item.SetString("title", strings.TrimSuffix(strings.TrimSpace(info.ArticleTitle), "."))
	item.SetString("container-title", journal.Title)
	item.SetString("container-title-short", journal.ISOAbbreviation)
	item.SetString("ISSN", journal.ISSN)
	item.SetString("volume", journal.JournalIssue.Volume)
	item.SetString("issue", journal.JournalIssue.Issue)
	item.SetString("page", extractPages(info.Pagination))
	item.SetString("abstract", extractAbstract(info.Abstract))
	item.SetString("DOI", extractDOI(info, article.PubmedData))
	if len(info.Language) > 0 {
		item.SetString("language", info.Language[0])
	}
	for _, aid := range article.PubmedData.ArticleIDList.ArticleIDs {
		if aid.IDType == "pmc" {
			item.SetString("PMCID", aid.Value)
		}
	}
	if authors := extractAuthors(info.AuthorList); len(authors) > 0 {
		item["author"] = authors
	}
	if issued := extractIssued(journal.JournalIssue.PubDate); issued != nil {
		item["issued"] = issued
	}
	return item
}

// extractDOI checks ELocationID first, then ArticleIdList.
func extractDOI(info ArticleInfo, data PubmedData) string {
	for _, eloc := range info.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			if doi, err := identifier.NormalizeDOI(eloc.Value); err == nil {
				return doi
			}
		}
	}
	for _, aid := range data.ArticleIDList.ArticleIDs {
		if aid.IDType == "doi" {
			if doi, err := identifier.NormalizeDOI(aid.Value); err == nil {
				return doi
			}
		}
	}
	return ""
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// parseMonth accepts "3", "03", "Mar" or "March".
func parseMonth(month string) int {
	month = strings.TrimSpace(month)
	if m, err := strconv.Atoi(month); err == nil && m >= 1 && m <= 12 {
		return m
	}
	if len(month) >= 3 {
		return monthNames[strings.ToLower(month[:3])]
	}
	return 0
}

// extractIssued builds the CSL issued date from PubDate. A MedlineDate
// such as "2020 Jan-Feb" yields the year and first month.
func extractIssued(pub PubDate) map[string]any {
	year, month, day := pub.Year, pub.Month, pub.Day
	if year == "" && pub.MedlineDate != "" {
		fields := strings.Fields(pub.MedlineDate)
		year = strings.SplitN(fields[0], "-", 2)[0]
		day = ""
		if len(fields) > 1 {
			month = strings.SplitN(fields[1], "-", 2)[0]
		}
	}

	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}
	m := parseMonth(month)
	d := 0
	if m != 0 {
		d, _ = strconv.Atoi(day)
	}
	return csl.DateParts(y, m, d)
}

// extractAbstract joins abstract sections, prefixing labeled ones.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil {
		return ""
	}
	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" && len(abstract.AbstractTexts) > 1 {
			text = at.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// extractAuthors converts the author list to CSL names. Collectives become
// literal names.
func extractAuthors(list *AuthorList) []any {
	if list == nil {
		return nil
	}
	names := make([]map[string]any, 0, len(list.Authors))
	for _, a := range list.Authors {
		if a.CollectiveName != "" {
			names = append(names, csl.Literal(a.CollectiveName))
			continue
		}
		given := a.ForeName
		if given == "" {
			given = a.Initials
		}
		name := csl.Name(a.LastName, given)
		if a.Suffix != "" && len(name) > 0 {
			name["suffix"] = a.Suffix
		}
		names = append(names, name)
	}
	return csl.Names(names...)
}

// extractPages formats the page information.
func extractPages(pagination *Pagination) string {
	if pagination == nil {
		return ""
	}
	if pagination.MedlinePgn != "" {
		return pagination.MedlinePgn
	}
	if pagination.StartPage != "" {
		if pagination.EndPage != "" && pagination.EndPage != pagination.StartPage {
			return pagination.StartPage + "-" + pagination.EndPage
		}
		return pagination.StartPage
	}
	return ""
}
