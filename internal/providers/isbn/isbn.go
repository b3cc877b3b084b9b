// Package isbn resolves ISBNs to CSL books with the Open Library Books API
// (https://openlibrary.org/dev/docs/api/books).
package isbn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/providers"
)

const (
	// Version tags cached ISBN payloads.
	Version = "1"

	// DefaultBaseURL is the Open Library host.
	DefaultBaseURL = "https://openlibrary.org"

	// DefaultRateLimit is requests per second against Open Library.
	DefaultRateLimit = 5.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	sourceName = "isbn"
)

var yearPattern = regexp.MustCompile(`(1[5-9]|20)[0-9]{2}`)

// Config holds the configuration for the ISBN adapter.
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

// Client implements providers.Fetchable for ISBNs.
type Client struct {
	config     Config
	httpClient *providers.HTTPClient
}

var _ providers.Fetchable = (*Client)(nil)

// New creates an ISBN adapter with its own HTTP client.
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

// NewWithHTTPClient creates an ISBN adapter using httpClient.
func NewWithHTTPClient(cfg Config, httpClient *providers.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Provider returns domain.ProviderISBN.
func (c *Client) Provider() domain.Provider { return domain.ProviderISBN }

// Version returns the payload version.
func (c *Client) Version() string { return Version }

// Book is the jscmd=data record for one ISBN.
type Book struct {
	Title         string  `json:"title"`
	Subtitle      string  `json:"subtitle"`
	URL           string  `json:"url"`
	Authors       []Named `json:"authors"`
	Publishers    []Named `json:"publishers"`
	PublishPlaces []Named `json:"publish_places"`
	PublishDate   string  `json:"publish_date"`
	NumberOfPages int     `json:"number_of_pages"`
}

// Named is an Open Library object with a display name.
type Named struct {
	Name string `json:"name"`
}

// Retrieve requests the book record. Open Library answers unknown ISBNs
// with an empty object.
func (c *Client) Retrieve(ctx context.Context, id identifier.Identifier) ([]byte, error) {
	q := url.Values{}
	q.Set("bibkeys", bibkey(id))
	q.Set("jscmd", "data")
	q.Set("format", "json")
	body, err := providers.Get(ctx, c.httpClient, id, c.config.BaseURL+"/api/books?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if _, err := decodeBook(id, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Transform converts the Open Library record to a CSL book.
func (c *Client) Transform(id identifier.Identifier, payload []byte) (csl.Item, error) {
	book, err := decodeBook(id, payload)
	if err != nil {
		return nil, err
	}

	item := csl.Item{
		"id":   id.String(),
		"type": "book",
		"ISBN": id.Value,
	}
	title := book.Title
	if book.Subtitle != "" {
		title += ": " + book.Subtitle
	}
	item.SetString("title", title)
	item.SetString("URL", book.URL)
	if len(book.Publishers) > 0 {
		item.SetString("publisher", book.Publishers[0].Name)
	}
	if len(book.PublishPlaces) > 0 {
		item.SetString("publisher-place", book.PublishPlaces[0].Name)
	}
	if book.NumberOfPages > 0 {
		item["number-of-pages"] = strconv.Itoa(book.NumberOfPages)
	}
	if issued := publishDate(book.PublishDate); issued != nil {
		item["issued"] = issued
	}

	authors := make([]map[string]any, 0, len(book.Authors))
	for _, a := range book.Authors {
		authors = append(authors, csl.ParseName(a.Name))
	}
	if names := csl.Names(authors...); len(names) > 0 {
		item["author"] = names
	}
	return item, nil
}

func bibkey(id identifier.Identifier) string {
	return "ISBN:" + id.Value
}

func decodeBook(id identifier.Identifier, payload []byte) (Book, error) {
	var records map[string]Book
	if err := json.Unmarshal(payload, &records); err != nil {
		return Book{}, providers.Malformed(sourceName, id, fmt.Errorf("decode books response: %w", err))
	}
	book, ok := records[bibkey(id)]
	if !ok {
		return Book{}, domain.NewNotFoundError("open library record", id.Value)
	}
	return book, nil
}

// publishDate understands ISO dates and free text such as "March 2004".
func publishDate(s string) map[string]any {
	date := csl.ParseDate(s)
	if _, literal := date["literal"]; !literal {
		return date
	}
	if year := yearPattern.FindString(s); year != "" {
		y, _ := strconv.Atoi(year)
		return csl.DateParts(y)
	}
	return date
}
