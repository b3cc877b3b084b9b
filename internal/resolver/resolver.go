// Package resolver turns a list of citation strings into an ordered,
// deduplicated set of validated CSL references with stable citation keys.
//
// A run advances through the states of domain.RunState: citations are
// parsed and deduplicated, distinct identifiers are fetched through the
// cache by a bounded pool of workers, manual references are applied, items
// are validated, and keys are assigned in first-seen order. Failures are
// collected per citation; the references that did resolve are always
// returned.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agitter/manubot/internal/cache"
	"github.com/agitter/manubot/internal/config"
	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/observability"
	"github.com/agitter/manubot/internal/overlay"
	"github.com/agitter/manubot/internal/providers"
)

// DefaultConcurrency is the number of identifiers fetched at once.
const DefaultConcurrency = 8

// Config holds the configuration for a Resolver.
type Config struct {
	// Concurrency bounds parallel fetches. Defaults to DefaultConcurrency.
	Concurrency int

	// KeyStyle is config.KeyStyleShort (default) or config.KeyStyleOrdinal.
	KeyStyle string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache routes network fetches through c. Without a cache every run
// fetches from the providers.
func WithCache(c *cache.Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithOverlay applies manual references.
func WithOverlay(s *overlay.Set) Option {
	return func(r *Resolver) { r.overlay = s }
}

// WithTags expands "tag:name" citations before parsing.
func WithTags(tags identifier.Tags) Option {
	return func(r *Resolver) { r.tags = tags }
}

// WithValidator sets the CSL validator. Defaults to prune mode.
func WithValidator(v *csl.Validator) Option {
	return func(r *Resolver) { r.validator = v }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver resolves citations against a provider registry. It holds no
// per-run state and may be used for several runs.
type Resolver struct {
	registry  *providers.Registry
	cache     *cache.Cache
	overlay   *overlay.Set
	tags      identifier.Tags
	validator *csl.Validator
	logger    zerolog.Logger
	metrics   *observability.Metrics
	cfg       Config
}

// New creates a Resolver over registry.
func New(registry *providers.Registry, cfg Config, opts ...Option) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.KeyStyle == "" {
		cfg.KeyStyle = config.KeyStyleShort
	}
	r := &Resolver{
		registry: registry,
		logger:   zerolog.Nop(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.validator == nil {
		r.validator = csl.NewValidator(csl.ModePrune, r.logger)
	}
	return r
}

// Reference is one resolved identifier.
type Reference struct {
	ID     identifier.Identifier
	Key    string
	Source domain.ReferenceSource
	Item   csl.Item
}

// Citation maps one distinct input string to its reference. Key and Source
// are empty when the citation failed.
type Citation struct {
	Raw        string
	StandardID string
	Key        string
	Source     domain.ReferenceSource
}

// Stats summarizes a run.
type Stats struct {
	Citations   int
	Identifiers int
	// CacheHits counts network identifiers this run did not request
	// itself: store hits and joins on another caller's in-flight fetch.
	CacheHits int
	// Fetched counts provider requests made by this run. Raw records
	// never count.
	Fetched int
	Manual  int
	Failed  int
}

// Result is the output of a run. References are in first-seen order and
// Citations in first-appearance order.
type Result struct {
	RunID      string
	State      domain.RunState
	References []*Reference
	Citations  []Citation
	Failures   []*domain.Failure
	Stats      Stats
}

// Reference returns the reference for a standard identifier string.
func (res *Result) Reference(standardID string) (*Reference, bool) {
	for _, ref := range res.References {
		if ref.ID.String() == standardID {
			return ref, true
		}
	}
	return nil, false
}

// entry tracks one distinct identifier through a run.
type entry struct {
	id       identifier.Identifier
	citation string // first input string that produced id
	item     csl.Item
	source   domain.ReferenceSource
	outcome  cache.Outcome
	err      error
}

// run carries the state of a single Resolve call.
type run struct {
	*Resolver
	logger zerolog.Logger
	result *Result
}

func (rn *run) advance() {
	next := rn.result.State.Next()
	rn.logger.Debug().Str("from", string(rn.result.State)).Str("to", string(next)).Msg("run state")
	rn.result.State = next
}

// Resolve resolves citations. The Result is returned even when some
// citations fail, in which case the error is a *domain.RunError listing
// them. Once ctx is done no new fetches start and the identifiers not yet
// fetched fail with domain.ErrCancelled.
func (r *Resolver) Resolve(ctx context.Context, citations []string) (*Result, error) {
	start := time.Now()
	runID := observability.RunIDFromContext(ctx)
	if runID == "" {
		runID = observability.NewRunID()
		ctx = observability.WithRunID(ctx, runID)
	}
	rn := &run{
		Resolver: r,
		logger:   observability.LoggerFromContext(ctx, r.logger),
		result:   &Result{RunID: runID, State: domain.RunStateInit},
	}
	r.metrics.RecordRunStarted()

	rn.advance()
	entries := rn.parse(citations)

	rn.advance()
	rn.fetch(ctx, entries)

	rn.advance()
	rn.applyOverlay(entries)

	rn.advance()
	rn.validate(entries)

	rn.advance()
	rn.assignKeys(entries)

	rn.advance()
	return rn.finish(start)
}

// parse deduplicates citations, expands tags and parses each distinct
// citation. Distinct strings that normalize to the same identifier share an
// entry.
func (rn *run) parse(citations []string) []*entry {
	byID := make(map[identifier.Identifier]*entry)
	seen := make(map[string]bool, len(citations))
	var entries []*entry

	for _, raw := range citations {
		if seen[raw] {
			continue
		}
		seen[raw] = true

		expanded, err := rn.tags.Expand(raw)
		if err != nil {
			rn.fail(raw, "", err)
			rn.result.Citations = append(rn.result.Citations, Citation{Raw: raw})
			continue
		}
		id, err := identifier.Parse(expanded)
		if err != nil {
			rn.fail(raw, "", err)
			rn.result.Citations = append(rn.result.Citations, Citation{Raw: raw})
			continue
		}
		rn.result.Citations = append(rn.result.Citations, Citation{Raw: raw, StandardID: id.String()})
		if _, ok := byID[id]; ok {
			continue
		}
		e := &entry{id: id, citation: raw}
		byID[id] = e
		entries = append(entries, e)
	}

	rn.result.Stats.Citations = len(rn.result.Citations)
	rn.result.Stats.Identifiers = len(entries)
	rn.logger.Debug().Int("citations", len(rn.result.Citations)).Int("identifiers", len(entries)).Msg("parsed citations")
	return entries
}

// fetch retrieves every entry not fully replaced by a manual reference.
func (rn *run) fetch(ctx context.Context, entries []*entry) {
	var pending []*entry
	for _, e := range entries {
		if rn.overlay.Replaces(e.id) {
			continue
		}
		pending = append(pending, e)
	}
	if len(pending) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(rn.cfg.Concurrency)
	var mu sync.Mutex

	for i, e := range pending {
		if ctx.Err() != nil {
			for _, rest := range pending[i:] {
				rest.err = cancelled(ctx.Err())
			}
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				e.err = cancelled(ctx.Err())
				return nil
			}
			item, outcome, err := rn.fetchOne(ctx, e.id)
			e.item, e.outcome, e.err = item, outcome, err

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil, !e.id.Provider.RequiresNetwork():
			case outcome == cache.OutcomeMiss:
				rn.result.Stats.Fetched++
			default:
				rn.result.Stats.CacheHits++
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (rn *run) fetchOne(ctx context.Context, id identifier.Identifier) (csl.Item, cache.Outcome, error) {
	logger := observability.WithIdentifierContext(rn.logger, id.String(), string(id.Provider))

	adapter, err := rn.registry.Lookup(id.Provider)
	if err != nil {
		return nil, "", err
	}

	if rn.cache == nil || !id.Provider.RequiresNetwork() {
		item, err := providers.Fetch(ctx, adapter, id)
		if err != nil {
			return nil, cache.OutcomeMiss, fetchError(ctx, err)
		}
		logger.Debug().Msg("fetched citation")
		return item, cache.OutcomeMiss, nil
	}

	key := cache.Key{Provider: id.Provider, Value: id.Value, AdapterVersion: adapter.Version()}
	payload, outcome, err := rn.cache.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		return adapter.Retrieve(ctx, id)
	})
	if err != nil {
		return nil, outcome, fetchError(ctx, err)
	}

	item, err := adapter.Transform(id, payload)
	if err != nil {
		return nil, outcome, err
	}
	logger.Debug().Str("cache", string(outcome)).Msg("fetched citation")
	return item, outcome, nil
}

// fetchError marks failures caused by ctx ending as cancellations.
func fetchError(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, domain.ErrCancelled) {
		return cancelled(err)
	}
	return err
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", domain.ErrCancelled, cause)
}

// applyOverlay combines fetched items with manual references. A merge
// record also stands in for an identifier whose fetch failed, except when
// the run was cancelled.
func (rn *run) applyOverlay(entries []*entry) {
	for _, e := range entries {
		if e.err != nil {
			if _, ok := rn.overlay.Lookup(e.id); !ok || errors.Is(e.err, domain.ErrCancelled) {
				continue
			}
			rn.logger.Warn().Err(e.err).Str("citation", e.id.String()).Msg("fetch failed, using manual reference alone")
			e.err = nil
		}
		e.item, e.source = rn.overlay.Apply(e.id, e.item)
		if e.source != domain.SourceFetched {
			rn.result.Stats.Manual++
		}
	}
}

func (rn *run) validate(entries []*entry) {
	for _, e := range entries {
		if e.err != nil {
			continue
		}
		item, removed, err := rn.validator.Check(e.item)
		rn.metrics.RecordFieldsPruned(len(removed))
		if err != nil {
			rn.metrics.RecordItemDropped()
			e.err = err
			continue
		}
		e.item = item
	}
}

// assignKeys gives every resolved entry a citation key in first-seen order
// and records failures for the rest.
func (rn *run) assignKeys(entries []*entry) {
	keys := newKeyGenerator(rn.cfg.KeyStyle)
	keyOf := make(map[string]*Reference, len(entries))

	for _, e := range entries {
		if e.err != nil {
			rn.fail(e.citation, e.id.Provider, e.err)
			continue
		}
		ref := &Reference{
			ID:     e.id,
			Key:    keys.next(e.id.String()),
			Source: e.source,
			Item:   e.item,
		}
		ref.Item.SetID(ref.Key)
		keyOf[e.id.String()] = ref
		rn.result.References = append(rn.result.References, ref)
		rn.metrics.RecordCitationResolved(string(e.id.Provider), string(e.source))
	}

	for i, c := range rn.result.Citations {
		if ref, ok := keyOf[c.StandardID]; ok {
			rn.result.Citations[i].Key = ref.Key
			rn.result.Citations[i].Source = ref.Source
		}
	}
}

func (rn *run) fail(citation string, provider domain.Provider, err error) {
	rn.result.Failures = append(rn.result.Failures, &domain.Failure{Citation: citation, Err: err})
	rn.metrics.RecordCitationFailed(string(provider), domain.Kind(err))

	event := rn.logger.Error()
	if errors.Is(err, domain.ErrCancelled) {
		event = rn.logger.Warn()
	}
	event.Err(err).Str("citation", citation).Str("kind", domain.Kind(err)).Msg("citation could not be resolved")
}

func (rn *run) finish(start time.Time) (*Result, error) {
	res := rn.result
	res.Stats.Failed = len(res.Failures)
	elapsed := time.Since(start).Seconds()

	rn.logger.Info().
		Int("citations", res.Stats.Citations).
		Int("references", len(res.References)).
		Int("cache_hits", res.Stats.CacheHits).
		Int("fetched", res.Stats.Fetched).
		Int("manual", res.Stats.Manual).
		Int("failed", res.Stats.Failed).
		Float64("duration_seconds", elapsed).
		Msg("resolution finished")

	if len(res.Failures) == 0 {
		rn.metrics.RecordRunCompleted(elapsed)
		return res, nil
	}

	runErr := &domain.RunError{Failures: res.Failures, Total: res.Stats.Citations}
	if errors.Is(runErr, domain.ErrCancelled) {
		rn.metrics.RecordRunCancelled()
	}
	rn.metrics.RecordRunFailed(elapsed)
	return res, runErr
}
