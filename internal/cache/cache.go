// Package cache stores raw provider responses between runs. Entries are
// keyed by a fingerprint of provider, identifier and adapter version, and
// wrapped in a versioned, compressed envelope. Cache failures never fail a
// run: unreadable entries are misses and write errors are logged.
package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/agitter/manubot/internal/observability"
)

// Outcome describes how a Fetch was satisfied.
type Outcome string

const (
	// OutcomeHit means the payload came from the store.
	OutcomeHit Outcome = "hit"
	// OutcomeMiss means the loader ran and its payload was stored.
	OutcomeMiss Outcome = "miss"
	// OutcomeShared means the caller joined another in-flight Fetch.
	OutcomeShared Outcome = "shared"
)

// LoadFunc produces the payload for a key on a miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Cache wraps a Store with fingerprinting, the entry envelope and
// in-flight deduplication.
type Cache struct {
	store   Store
	backend string
	group   singleflight.Group
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source used for stored-at stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithBackendName labels log lines with the store kind.
func WithBackendName(name string) Option {
	return func(c *Cache) { c.backend = name }
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		backend: "custom",
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "cache").Logger()
	return c
}

// Backend returns the store kind.
func (c *Cache) Backend() string {
	return c.backend
}

// Get returns the cached payload for key. Store errors, corrupt entries and
// entries written under another format or adapter version are misses.
func (c *Cache) Get(ctx context.Context, key Key) ([]byte, bool) {
	fp := key.Fingerprint()
	logger := observability.WithCacheContext(c.logger, c.backend, fp)

	data, ok, err := c.store.Get(ctx, fp)
	if err != nil {
		logger.Warn().Err(err).Str("key", key.String()).Msg("cache read failed, treating as miss")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	entry, err := DecodeEntry(fp, data)
	if err != nil {
		c.metrics.RecordCacheCorruption()
		logger.Warn().Err(err).Str("key", key.String()).Msg("corrupt cache entry, treating as miss")
		return nil, false
	}

	switch {
	case entry.Format != FormatTag:
		logger.Debug().Str("format", entry.Format).Msg("cache entry format mismatch")
		return nil, false
	case entry.AdapterVersion != key.AdapterVersion:
		logger.Debug().Str("adapter_version", entry.AdapterVersion).Msg("cache entry adapter version mismatch")
		return nil, false
	case entry.Fingerprint != fp:
		logger.Debug().Str("stored_fingerprint", entry.Fingerprint).Msg("cache entry fingerprint mismatch")
		return nil, false
	}
	return entry.Payload, true
}

// Put stores payload under key.
func (c *Cache) Put(ctx context.Context, key Key, payload []byte) error {
	entry := Entry{
		Format:         FormatTag,
		Fingerprint:    key.Fingerprint(),
		AdapterVersion: key.AdapterVersion,
		StoredAt:       c.now().UTC(),
		Payload:        payload,
	}
	data, err := entry.Encode()
	if err != nil {
		return err
	}
	return c.store.Put(ctx, entry.Fingerprint, data)
}

type fetchResult struct {
	payload []byte
	outcome Outcome
}

// Fetch returns the payload for key, running load on a miss and storing
// its result. Concurrent callers with the same key share one lookup and
// one load. Errors from load are returned unchanged and nothing is stored.
func (c *Cache) Fetch(ctx context.Context, key Key, load LoadFunc) ([]byte, Outcome, error) {
	fp := key.Fingerprint()
	leader := false
	v, err, _ := c.group.Do(fp, func() (any, error) {
		leader = true
		if payload, ok := c.Get(ctx, key); ok {
			return fetchResult{payload: payload, outcome: OutcomeHit}, nil
		}
		payload, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(ctx, key, payload); err != nil {
			logger := observability.WithCacheContext(c.logger, c.backend, fp)
			logger.Warn().Err(err).Str("key", key.String()).Msg("cache write failed")
		}
		return fetchResult{payload: payload, outcome: OutcomeMiss}, nil
	})
	if err != nil {
		return nil, OutcomeMiss, err
	}

	res := v.(fetchResult)
	outcome := res.outcome
	if !leader {
		outcome = OutcomeShared
	}
	c.metrics.RecordCacheLookup(string(outcome))
	return res.payload, outcome, nil
}

// Clear removes every cached entry.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.logger.Info().Str("cache_backend", c.backend).Msg("request cache cleared")
	return nil
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
