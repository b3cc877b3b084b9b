// Package arxiv resolves arXiv identifiers with the arXiv Atom API
// (https://info.arxiv.org/help/api/user-manual.html).
package arxiv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/providers"
)

const (
	// Version tags cached arXiv payloads.
	Version = "1"

	// DefaultBaseURL is the arXiv API endpoint.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit follows arXiv's request of one call every few seconds
	// for bursts, with a sustained limit of one per second.
	DefaultRateLimit = 1.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// AbsURL is the abstract page prefix.
	AbsURL = "https://arxiv.org/abs/"

	sourceName = "arxiv"
)

var versionPattern = regexp.MustCompile(`v([0-9]+)$`)

// Config holds the configuration for the arXiv adapter.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
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
	}
}

// Client implements providers.Fetchable for arXiv identifiers.
type Client struct {
	config     Config
	httpClient *providers.HTTPClient
}

var _ providers.Fetchable = (*Client)(nil)

// New creates an arXiv adapter with its own HTTP client.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config: cfg,
		httpClient: providers.NewHTTPClient(providers.HTTPClientConfig{
			Provider:  sourceName,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: 1,
		}),
	}
}

// NewWithHTTPClient creates an arXiv adapter using httpClient.
func NewWithHTTPClient(cfg Config, httpClient *providers.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Provider returns domain.ProviderArXiv.
func (c *Client) Provider() domain.Provider { return domain.ProviderArXiv }

// Version returns the payload version.
func (c *Client) Version() string { return Version }

// Retrieve queries the API for the single identifier. Feeds without a
// matching entry are reported as not found.
func (c *Client) Retrieve(ctx context.Context, id identifier.Identifier) ([]byte, error) {
	q := url.Values{}
	q.Set("id_list", id.Value)
	q.Set("max_results", "1")
	body, err := providers.Get(ctx, c.httpClient, id, c.config.BaseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if _, err := findEntry(id, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Transform converts the Atom entry to a CSL manuscript.
func (c *Client) Transform(id identifier.Identifier, payload []byte) (csl.Item, error) {
	entry, err := findEntry(id, payload)
	if err != nil {
		return nil, err
	}

	item := csl.Item{
		"id":              id.String(),
		"type":            "manuscript",
		"publisher":       "arXiv",
		"container-title": "arXiv",
	}

	versioned := versionedID(id, text(entry, el("id")))
	item["number"] = versioned
	item["URL"] = AbsURL + versioned
	if m := versionPattern.FindStringSubmatch(versioned); m != nil {
		item["version"] = m[0]
	}

	item.SetString("title", collapse(text(entry, el("title"))))
	item.SetString("abstract", collapse(text(entry, el("summary"))))
	if doi, err := identifier.NormalizeDOI(text(entry, el("doi"))); err == nil {
		item["DOI"] = doi
	}
	if issued := csl.ParseDate(text(entry, el("published"))); issued != nil {
		item["issued"] = issued
	}

	authors := make([]map[string]any, 0)
	for _, node := range xmlquery.Find(entry, el("author")+"/"+el("name")) {
		authors = append(authors, csl.ParseName(node.InnerText()))
	}
	if names := csl.Names(authors...); len(names) > 0 {
		item["author"] = names
	}

	categories := make([]any, 0)
	for _, node := range xmlquery.Find(entry, el("category")) {
		if term := node.SelectAttr("term"); term != "" {
			categories = append(categories, term)
		}
	}
	if len(categories) > 0 {
		item["categories"] = categories
	}

	return item, nil
}

// findEntry parses the feed and returns the entry for id. The API reports
// bad identifiers as an entry titled "Error" whose id points at
// arxiv.org/api/errors.
func findEntry(id identifier.Identifier, payload []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, providers.Malformed(sourceName, id, fmt.Errorf("parsing XML: %w", err))
	}
	if xmlquery.FindOne(doc, "/"+el("feed")) == nil {
		return nil, providers.Malformed(sourceName, id, errors.New("response is not an Atom feed"))
	}

	for _, entry := range xmlquery.Find(doc, "/"+el("feed")+"/"+el("entry")) {
		entryID := text(entry, el("id"))
		if strings.Contains(entryID, "/api/errors") {
			return nil, fmt.Errorf("%w: %s", domain.NewNotFoundError("arxiv record", id.Value), collapse(text(entry, el("summary"))))
		}
		if stripVersion(absID(entryID)) == stripVersion(id.Value) {
			return entry, nil
		}
	}
	return nil, domain.NewNotFoundError("arxiv record", id.Value)
}

// el matches an element by local name. The feed mixes the Atom default
// namespace with the arxiv: prefix.
func el(name string) string {
	return "*[local-name()='" + name + "']"
}

// text returns the trimmed inner text of the first node matching expr
// below n, or "".
func text(n *xmlquery.Node, expr string) string {
	if found := xmlquery.FindOne(n, expr); found != nil {
		return strings.TrimSpace(found.InnerText())
	}
	return ""
}

// absID extracts "2301.12345v1" from "http://arxiv.org/abs/2301.12345v1".
func absID(entryID string) string {
	if i := strings.Index(entryID, "/abs/"); i >= 0 {
		return entryID[i+len("/abs/"):]
	}
	return entryID
}

func stripVersion(s string) string {
	return versionPattern.ReplaceAllString(s, "")
}

// versionedID prefers the identifier as requested when it names a version,
// otherwise the latest version reported by the feed.
func versionedID(id identifier.Identifier, entryID string) string {
	if versionPattern.MatchString(id.Value) {
		return id.Value
	}
	if abs := absID(entryID); abs != "" {
		return abs
	}
	return id.Value
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
