// Package url builds CSL webpages from the metadata embedded in HTML pages:
// Highwire citation_* tags, Dublin Core, OpenGraph and the <title> element.
package url

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/providers"
)

const (
	// Version tags cached page payloads.
	Version = "1"

	// DefaultRateLimit is requests per second across all hosts.
	DefaultRateLimit = 5.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	sourceName = "url"

	acceptHTML = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5"
)

// Meta keys in order of preference for each CSL field.
var (
	titleKeys     = []string{"citation_title", "dc.title", "og:title", "twitter:title"}
	authorKeys    = []string{"citation_author", "dc.creator", "author", "article:author"}
	dateKeys      = []string{"citation_publication_date", "citation_date", "citation_online_date", "dc.date", "article:published_time"}
	containerKeys = []string{"citation_journal_title", "citation_conference_title", "og:site_name"}
	publisherKeys = []string{"citation_publisher", "dc.publisher"}
	abstractKeys  = []string{"citation_abstract", "dc.description", "og:description", "description"}
	languageKeys  = []string{"citation_language", "dc.language"}
)

// Config holds the configuration for the URL adapter.
type Config struct {
	Timeout   time.Duration
	RateLimit float64

	// Clock supplies the accessed date. Defaults to time.Now.
	Clock func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Client implements providers.Fetchable for web pages.
type Client struct {
	config     Config
	httpClient *providers.HTTPClient
}

var _ providers.Fetchable = (*Client)(nil)

// New creates a URL adapter with its own HTTP client.
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

// NewWithHTTPClient creates a URL adapter using httpClient.
func NewWithHTTPClient(cfg Config, httpClient *providers.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Provider returns domain.ProviderURL.
func (c *Client) Provider() domain.Provider { return domain.ProviderURL }

// Version returns the payload version.
func (c *Client) Version() string { return Version }

// Retrieve downloads the page.
func (c *Client) Retrieve(ctx context.Context, id identifier.Identifier) ([]byte, error) {
	return providers.Get(ctx, c.httpClient, id, id.Value, map[string]string{"Accept": acceptHTML})
}

// Transform extracts page metadata into a CSL webpage. The accessed date
// is the adapter clock's current day.
func (c *Client) Transform(id identifier.Identifier, payload []byte) (csl.Item, error) {
	page, err := parsePage(payload)
	if err != nil {
		return nil, providers.Malformed(sourceName, id, err)
	}

	item := csl.Item{
		"id":   id.String(),
		"type": "webpage",
		"URL":  id.Value,
	}

	title := page.first(titleKeys...)
	if title == "" {
		title = page.title
	}
	item.SetString("title", title)
	item.SetString("container-title", page.first(containerKeys...))
	item.SetString("publisher", page.first(publisherKeys...))
	item.SetString("abstract", page.first(abstractKeys...))

	language := page.first(languageKeys...)
	if language == "" {
		language = page.lang
	}
	item.SetString("language", language)

	if doi, err := identifier.NormalizeDOI(page.first("citation_doi", "dc.identifier")); err == nil {
		item["DOI"] = doi
	}
	if issued := csl.ParseDate(page.first(dateKeys...)); issued != nil {
		item["issued"] = issued
	}

	for _, key := range authorKeys {
		values := page.meta[key]
		if len(values) == 0 {
			continue
		}
		names := make([]map[string]any, 0, len(values))
		for _, v := range values {
			names = append(names, csl.ParseName(v))
		}
		if authors := csl.Names(names...); len(authors) > 0 {
			item["author"] = authors
			break
		}
	}

	now := c.config.Clock().UTC()
	item["accessed"] = csl.DateParts(now.Year(), int(now.Month()), now.Day())
	return item, nil
}

// page is the metadata found in an HTML document.
type page struct {
	title string
	lang  string
	meta  map[string][]string
}

// first returns the first non-empty value among keys.
func (p *page) first(keys ...string) string {
	for _, k := range keys {
		for _, v := range p.meta[k] {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func parsePage(payload []byte) (*page, error) {
	doc, err := html.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	p := &page{meta: make(map[string][]string)}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Html:
				p.lang = attr(n, "lang")
			case atom.Title:
				if p.title == "" && n.FirstChild != nil {
					p.title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
				}
			case atom.Meta:
				key := attr(n, "name")
				if key == "" {
					key = attr(n, "property")
				}
				if key != "" {
					key = strings.ToLower(key)
					p.meta[key] = append(p.meta[key], attr(n, "content"))
				}
			case atom.Body:
				// only <head> carries page metadata
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return p, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
