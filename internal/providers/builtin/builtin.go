// Package builtin assembles the provider registry from configuration.
package builtin

import (
	"time"

	"github.com/agitter/manubot/internal/config"
	"github.com/agitter/manubot/internal/observability"
	"github.com/agitter/manubot/internal/providers"
	"github.com/agitter/manubot/internal/providers/arxiv"
	"github.com/agitter/manubot/internal/providers/doi"
	"github.com/agitter/manubot/internal/providers/isbn"
	"github.com/agitter/manubot/internal/providers/pmc"
	"github.com/agitter/manubot/internal/providers/pubmed"
	"github.com/agitter/manubot/internal/providers/raw"
	urlprovider "github.com/agitter/manubot/internal/providers/url"
)

// Options tune registry construction beyond the config file.
type Options struct {
	// Metrics receives per-provider request metrics. May be nil.
	Metrics *observability.Metrics
	// Clock overrides the accessed date of URL references.
	Clock func() time.Time
}

// Registry registers every enabled adapter. The raw adapter needs no
// network and is always present.
func Registry(cfg config.ProvidersConfig, opts Options) *providers.Registry {
	reg := providers.NewRegistry()
	reg.Register(raw.New())

	if cfg.DOI.Enabled {
		reg.Register(doi.NewWithHTTPClient(doi.Config{
			BaseURL:   cfg.DOI.BaseURL,
			Timeout:   cfg.DOI.Timeout,
			RateLimit: cfg.DOI.RateLimit,
		}, httpClient("doi", cfg, cfg.DOI, cfg.DOI.RateLimit, opts)))
	}

	if cfg.PubMed.Enabled {
		rate := cfg.PubMed.RateLimit
		if cfg.PubMed.APIKey != "" && rate < pubmed.APIKeyRateLimit {
			rate = pubmed.APIKeyRateLimit
		}
		reg.Register(pubmed.NewWithHTTPClient(pubmed.Config{
			BaseURL:   cfg.PubMed.BaseURL,
			APIKey:    cfg.PubMed.APIKey,
			Timeout:   cfg.PubMed.Timeout,
			RateLimit: rate,
		}, httpClient("pubmed", cfg, cfg.PubMed.ProviderConfig, rate, opts)))
	}

	if cfg.PMC.Enabled {
		reg.Register(pmc.NewWithHTTPClient(pmc.Config{
			BaseURL:   cfg.PMC.BaseURL,
			Timeout:   cfg.PMC.Timeout,
			RateLimit: cfg.PMC.RateLimit,
		}, httpClient("pmc", cfg, cfg.PMC, cfg.PMC.RateLimit, opts)))
	}

	if cfg.ArXiv.Enabled {
		client := httpClient("arxiv", cfg, cfg.ArXiv, cfg.ArXiv.RateLimit, opts)
		reg.Register(arxiv.NewWithHTTPClient(arxiv.Config{
			BaseURL:   cfg.ArXiv.BaseURL,
			Timeout:   cfg.ArXiv.Timeout,
			RateLimit: cfg.ArXiv.RateLimit,
		}, client))
	}

	if cfg.ISBN.Enabled {
		reg.Register(isbn.NewWithHTTPClient(isbn.Config{
			BaseURL:   cfg.ISBN.BaseURL,
			Timeout:   cfg.ISBN.Timeout,
			RateLimit: cfg.ISBN.RateLimit,
		}, httpClient("isbn", cfg, cfg.ISBN, cfg.ISBN.RateLimit, opts)))
	}

	if cfg.URL.Enabled {
		reg.Register(urlprovider.NewWithHTTPClient(urlprovider.Config{
			Timeout:   cfg.URL.Timeout,
			RateLimit: cfg.URL.RateLimit,
			Clock:     opts.Clock,
		}, httpClient("url", cfg, cfg.URL, cfg.URL.RateLimit, opts)))
	}

	return reg
}

func httpClient(name string, cfg config.ProvidersConfig, pc config.ProviderConfig, rate float64, opts Options) *providers.HTTPClient {
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = providers.NoRetries
	}
	burst := 0
	if name == "arxiv" {
		burst = 1
	}
	return providers.NewHTTPClient(providers.HTTPClientConfig{
		Provider:   name,
		Timeout:    pc.Timeout,
		RateLimit:  rate,
		BurstSize:  burst,
		MaxRetries: retries,
		UserAgent:  cfg.UserAgent,
		Metrics:    opts.Metrics,
	})
}
