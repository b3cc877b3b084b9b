// Package doi resolves DOIs to CSL-JSON through content negotiation on the
// DOI resolver (https://citation.crosscite.org/docs.html).
package doi

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/providers"
)

const (
	// Version tags cached DOI payloads.
	Version = "1"

	// DefaultBaseURL is the DOI resolver.
	DefaultBaseURL = "https://doi.org"

	// DefaultRateLimit is requests per second against the resolver.
	DefaultRateLimit = 10.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MediaType is the Accept header that selects CSL-JSON.
	MediaType = "application/vnd.citationstyles.csl+json"

	sourceName = "doi"
)

// Config holds the configuration for the DOI adapter.
type Config struct {
	// BaseURL is the resolver base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Timeout is the request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit.
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

// Client implements providers.Fetchable for DOIs.
type Client struct {
	config     Config
	httpClient *providers.HTTPClient
}

var _ providers.Fetchable = (*Client)(nil)

// New creates a DOI adapter with its own HTTP client.
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

// NewWithHTTPClient creates a DOI adapter using httpClient.
func NewWithHTTPClient(cfg Config, httpClient *providers.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Provider returns domain.ProviderDOI.
func (c *Client) Provider() domain.Provider { return domain.ProviderDOI }

// Version returns the payload version.
func (c *Client) Version() string { return Version }

// Retrieve requests CSL-JSON for the DOI. Redirects to the registration
// agency are followed.
func (c *Client) Retrieve(ctx context.Context, id identifier.Identifier) ([]byte, error) {
	u := c.config.BaseURL + "/" + (&url.URL{Path: id.Value}).EscapedPath()
	return providers.Get(ctx, c.httpClient, id, u, map[string]string{"Accept": MediaType})
}

// Transform decodes the CSL-JSON payload and makes sure DOI and URL are set.
func (c *Client) Transform(id identifier.Identifier, payload []byte) (csl.Item, error) {
	items, err := csl.DecodeList(payload)
	if err != nil {
		return nil, providers.Malformed(sourceName, id, err)
	}
	if len(items) == 0 {
		return nil, domain.NewNotFoundError("doi record", id.Value)
	}
	item := items[0]

	if doi, _ := item["DOI"].(string); doi == "" {
		item["DOI"] = id.Value
	} else if normalized, err := identifier.NormalizeDOI(doi); err == nil {
		item["DOI"] = normalized
	}
	if u, _ := item["URL"].(string); u == "" {
		item["URL"] = DefaultBaseURL + "/" + id.Value
	}
	// Registration agencies put their own identifiers here.
	item.SetID(id.String())
	return item, nil
}
