package resolver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agitter/manubot/internal/cache"
	"github.com/agitter/manubot/internal/config"
	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/observability"
	"github.com/agitter/manubot/internal/overlay"
	"github.com/agitter/manubot/internal/providers/builtin"
)

const doiCSL = `{
	"type": "article-journal",
	"title": "An example article",
	"DOI": "10.1000/ABC",
	"author": [{"family": "Doe", "given": "Jane"}],
	"issued": {"date-parts": [[2020, 4, 1]]},
	"container-title": "Journal of Examples"
}`

// providerServers fakes doi.org and NCBI E-utilities and counts requests.
type providerServers struct {
	doi, pubmed *httptest.Server
	doiCalls    atomic.Int64
	pubmedCalls atomic.Int64
}

func newProviderServers(t *testing.T) *providerServers {
	t.Helper()
	s := &providerServers{}
	s.doi = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.doiCalls.Add(1)
		if r.URL.Path != "/10.1000/abc" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.citationstyles.csl+json")
		w.Write([]byte(doiCSL))
	}))
	s.pubmed = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.pubmedCalls.Add(1)
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0" ?><PubmedArticleSet></PubmedArticleSet>`))
	}))
	t.Cleanup(s.doi.Close)
	t.Cleanup(s.pubmed.Close)
	return s
}

func (s *providerServers) config() config.ProvidersConfig {
	enabled := func(baseURL string) config.ProviderConfig {
		return config.ProviderConfig{Enabled: true, BaseURL: baseURL, Timeout: 5 * time.Second, RateLimit: 100}
	}
	return config.ProvidersConfig{
		UserAgent: "manubot-test",
		DOI:       enabled(s.doi.URL),
		PubMed:    config.PubMedConfig{ProviderConfig: enabled(s.pubmed.URL)},
	}
}

func TestEndToEnd_DuplicateDOIAndMissingPMID(t *testing.T) {
	servers := newProviderServers(t)
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	counter := &observability.ErrorCounter{}
	logger := zerolog.New(&bytes.Buffer{}).Hook(counter)

	c := cache.New(cache.NewMemoryStore(), cache.WithMetrics(metrics))
	r := New(builtin.Registry(servers.config(), builtin.Options{Metrics: metrics}), Config{},
		WithCache(c), WithMetrics(metrics), WithLogger(logger))

	res, err := r.Resolve(context.Background(), []string{"doi:10.1000/abc", "doi:10.1000/abc", "pmid:999999999999"})

	require.Error(t, err, "the run fails")
	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	require.Len(t, runErr.Failures, 1)
	assert.Equal(t, "pmid:999999999999", runErr.Failures[0].Citation)
	assert.ErrorIs(t, runErr.Failures[0], domain.ErrIdentifierNotFound)
	assert.Equal(t, int64(1), counter.Count())

	assert.Equal(t, int64(1), servers.doiCalls.Load(), "the DOI is fetched once")
	assert.Equal(t, int64(1), servers.pubmedCalls.Load())

	require.Len(t, res.References, 1)
	ref := res.References[0]
	assert.Equal(t, "doi:10.1000/abc", ref.ID.String())
	assert.Equal(t, domain.SourceFetched, ref.Source)
	assert.Equal(t, "An example article", ref.Item.Title())
	assert.Equal(t, ref.Key, ref.Item.ID())
	assert.Empty(t, csl.DefaultSchema().Validate(ref.Item))

	var tsv bytes.Buffer
	require.NoError(t, WriteCitations(&tsv, res.Citations))
	lines := strings.Split(strings.TrimSuffix(tsv.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "doi:10.1000/abc\tdoi:10.1000/abc\t"+ref.Key+"\tfetched", lines[1])
	assert.Equal(t, "pmid:999999999999\tpmid:999999999999\t\t", lines[2])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CitationsFailed.WithLabelValues("pmid", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsFailed))

	// A second run answers the DOI from the cache; the missing PMID was
	// never stored and is asked for again.
	_, err = r.Resolve(context.Background(), []string{"doi:10.1000/abc", "pmid:999999999999"})
	require.Error(t, err)
	assert.Equal(t, int64(1), servers.doiCalls.Load())
	assert.Equal(t, int64(2), servers.pubmedCalls.Load())
}

func TestEndToEnd_ManualRawRecord(t *testing.T) {
	servers := newProviderServers(t)
	path := filepath.Join(t.TempDir(), "manual-references.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "raw:mykey", "title": "Custom"}]`), 0o644))

	set, err := overlay.Load(path, overlay.Options{})
	require.NoError(t, err)

	r := New(builtin.Registry(servers.config(), builtin.Options{}), Config{}, WithOverlay(set))
	res, err := r.Resolve(context.Background(), []string{"raw:mykey"})
	require.NoError(t, err)

	require.Len(t, res.References, 1)
	ref := res.References[0]
	assert.Equal(t, "Custom", ref.Item.Title())
	assert.Equal(t, domain.SourceManual, ref.Source)
	assert.Equal(t, domain.SourceManual, res.Citations[0].Source)
	assert.Zero(t, servers.doiCalls.Load()+servers.pubmedCalls.Load(), "no network call")
	assert.Zero(t, res.Stats.Fetched)
}

func TestEndToEnd_RawWithoutManualRecord(t *testing.T) {
	servers := newProviderServers(t)
	r := New(builtin.Registry(servers.config(), builtin.Options{}), Config{})

	res, err := r.Resolve(context.Background(), []string{`raw:{"type": "report", "title": "Inline"}`, "raw:orphan"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIdentifierNotFound)

	require.Len(t, res.References, 1)
	assert.Equal(t, "Inline", res.References[0].Item.Title())
	assert.Equal(t, domain.SourceFetched, res.References[0].Source)
	assert.Zero(t, res.Stats.Fetched, "raw records make no provider request")
}
