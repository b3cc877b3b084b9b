package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the citation pipeline,
// organized by subsystem: runs, citations, cache, providers, overlay and
// validation. Metrics are registered on the Registerer passed to
// NewMetrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RunsStarted counts resolution runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts runs in which every citation resolved.
	RunsCompleted prometheus.Counter

	// RunsFailed counts runs with at least one failed citation.
	RunsFailed prometheus.Counter

	// RunsCancelled counts runs interrupted by cancellation.
	RunsCancelled prometheus.Counter

	// RunDuration observes the end-to-end duration of runs in seconds.
	RunDuration prometheus.Histogram

	// CitationsResolved counts citations that produced a reference, labeled by provider and source.
	CitationsResolved *prometheus.CounterVec

	// CitationsFailed counts citations that failed, labeled by provider and error kind.
	CitationsFailed *prometheus.CounterVec

	// CacheLookups counts cache lookups, labeled by outcome (hit, miss, shared).
	CacheLookups *prometheus.CounterVec

	// CacheCorruptions counts undecodable cache entries that were treated as misses.
	CacheCorruptions prometheus.Counter

	// ProviderRequestsTotal counts outbound requests, labeled by provider.
	ProviderRequestsTotal *prometheus.CounterVec

	// ProviderRequestsFailed counts failed outbound requests, labeled by provider and error kind.
	ProviderRequestsFailed *prometheus.CounterVec

	// ProviderRequestDuration observes outbound request duration in seconds, labeled by provider.
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRateLimited counts rate-limited responses, labeled by provider.
	ProviderRateLimited *prometheus.CounterVec

	// OverlaysApplied counts manual overlay applications, labeled by source (manual, merged).
	OverlaysApplied *prometheus.CounterVec

	// OverlaysSkipped counts malformed manual entries that were skipped.
	OverlaysSkipped prometheus.Counter

	// FieldsPruned counts CSL fields removed by the validator.
	FieldsPruned prometheus.Counter

	// ItemsDropped counts items rejected by the validator.
	ItemsDropped prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on reg. The namespace
// prefixes every metric name.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Runs
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of resolution runs started",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of resolution runs completed without failures",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of resolution runs with failed citations",
		}),
		RunsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_cancelled_total",
			Help:      "Total number of resolution runs cancelled",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of resolution runs in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),

		// Citations
		CitationsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_resolved_total",
			Help:      "Total number of citations resolved",
		}, []string{"provider", "source"}),
		CitationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_failed_total",
			Help:      "Total number of citations that failed to resolve",
		}, []string{"provider", "kind"}),

		// Cache
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of cache lookups",
		}, []string{"outcome"}),
		CacheCorruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "corruptions_total",
			Help:      "Total number of corrupt cache entries treated as misses",
		}),

		// Providers
		ProviderRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of requests to provider APIs",
		}, []string{"provider"}),
		ProviderRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_failed_total",
			Help:      "Total number of failed requests to provider APIs",
		}, []string{"provider", "kind"}),
		ProviderRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests to provider APIs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		ProviderRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "rate_limited_total",
			Help:      "Total number of rate-limited responses from provider APIs",
		}, []string{"provider"}),

		// Overlay
		OverlaysApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "applied_total",
			Help:      "Total number of manual references applied",
		}, []string{"source"}),
		OverlaysSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "skipped_total",
			Help:      "Total number of malformed manual references skipped",
		}),

		// Validation
		FieldsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csl",
			Name:      "fields_pruned_total",
			Help:      "Total number of invalid CSL fields pruned",
		}),
		ItemsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csl",
			Name:      "items_dropped_total",
			Help:      "Total number of CSL items rejected by validation",
		}),
	}
}

// RecordRunStarted records that a run has started.
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

// RecordRunCompleted records a run whose citations all resolved.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records a run with failed citations.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunCancelled records that a run was cancelled.
func (m *Metrics) RecordRunCancelled() {
	if m == nil {
		return
	}
	m.RunsCancelled.Inc()
}

// RecordCitationResolved records a citation that produced a reference.
func (m *Metrics) RecordCitationResolved(provider, source string) {
	if m == nil {
		return
	}
	m.CitationsResolved.WithLabelValues(provider, source).Inc()
}

// RecordCitationFailed records a citation that failed with the given error kind.
func (m *Metrics) RecordCitationFailed(provider, kind string) {
	if m == nil {
		return
	}
	m.CitationsFailed.WithLabelValues(provider, kind).Inc()
}

// RecordCacheLookup records the outcome of a cache lookup.
func (m *Metrics) RecordCacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

// RecordCacheCorruption records a corrupt cache entry.
func (m *Metrics) RecordCacheCorruption() {
	if m == nil {
		return
	}
	m.CacheCorruptions.Inc()
}

// RecordProviderRequest records a request to a provider API.
func (m *Metrics) RecordProviderRequest(provider string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ProviderRequestsTotal.WithLabelValues(provider).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordProviderRequestFailed records a failed request to a provider API.
func (m *Metrics) RecordProviderRequestFailed(provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderRequestsFailed.WithLabelValues(provider, kind).Inc()
}

// RecordProviderRateLimited records a rate limit response from a provider.
func (m *Metrics) RecordProviderRateLimited(provider string) {
	if m == nil {
		return
	}
	m.ProviderRateLimited.WithLabelValues(provider).Inc()
}

// RecordOverlayApplied records a manual reference applied with the given source.
func (m *Metrics) RecordOverlayApplied(source string) {
	if m == nil {
		return
	}
	m.OverlaysApplied.WithLabelValues(source).Inc()
}

// RecordOverlaySkipped records a malformed manual reference.
func (m *Metrics) RecordOverlaySkipped() {
	if m == nil {
		return
	}
	m.OverlaysSkipped.Inc()
}

// RecordFieldsPruned records CSL fields removed by pruning.
func (m *Metrics) RecordFieldsPruned(count int) {
	if m == nil || count == 0 {
		return
	}
	m.FieldsPruned.Add(float64(count))
}

// RecordItemDropped records an item rejected by validation.
func (m *Metrics) RecordItemDropped() {
	if m == nil {
		return
	}
	m.ItemsDropped.Inc()
}
