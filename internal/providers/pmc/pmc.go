// Package pmc resolves PubMed Central identifiers with the NCBI Literature
// Citation Exporter, which answers natively in CSL-JSON.
package pmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/providers"
)

const (
	// Version tags cached PMC payloads.
	Version = "1"

	// DefaultBaseURL is the PMC endpoint of the citation exporter.
	DefaultBaseURL = "https://api.ncbi.nlm.nih.gov/lit/ctxp/v1/pmc"

	// DefaultRateLimit matches the NCBI limit without an API key.
	DefaultRateLimit = 3.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// ArticleURL is the landing page prefix of a PMC article.
	ArticleURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/"

	sourceName = "pmcid"
)

// Config holds the configuration for the PMC adapter.
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

// Client implements providers.Fetchable for PMCIDs.
type Client struct {
	config     Config
	httpClient *providers.HTTPClient
}

var _ providers.Fetchable = (*Client)(nil)

// New creates a PMC adapter with its own HTTP client.
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

// NewWithHTTPClient creates a PMC adapter using httpClient.
func NewWithHTTPClient(cfg Config, httpClient *providers.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Provider returns domain.ProviderPMCID.
func (c *Client) Provider() domain.Provider { return domain.ProviderPMCID }

// Version returns the payload version.
func (c *Client) Version() string { return Version }

// exporterError is the body the exporter sends for unknown identifiers,
// sometimes with status 200.
type exporterError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Retrieve requests the CSL-JSON export of the article.
func (c *Client) Retrieve(ctx context.Context, id identifier.Identifier) ([]byte, error) {
	q := url.Values{}
	q.Set("format", "csl")
	q.Set("id", id.Value)
	body, err := providers.Get(ctx, c.httpClient, id, c.config.BaseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var status exporterError
	if err := json.Unmarshal(body, &status); err == nil && status.Status == "error" {
		return nil, fmt.Errorf("%w: %s", domain.NewNotFoundError("pmc record", id.Value), status.Message)
	}
	return body, nil
}

// Transform decodes the exported item and sets PMCID and URL.
func (c *Client) Transform(id identifier.Identifier, payload []byte) (csl.Item, error) {
	item, err := csl.Decode(payload)
	if err != nil {
		return nil, providers.Malformed(sourceName, id, err)
	}
	item.SetID(id.String())
	item["PMCID"] = id.Value
	if u, _ := item["URL"].(string); u == "" {
		item["URL"] = ArticleURL + id.Value + "/"
	}
	// The exporter reports its own provenance in "source".
	delete(item, "source")
	return item, nil
}
