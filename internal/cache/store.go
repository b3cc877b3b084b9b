package cache

import (
	"context"
	"sync"
)

// Store is a keyed byte store. Implementations must be safe for concurrent
// use. A missing key is reported as (nil, false, nil).
type Store interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool, error)
	Put(ctx context.Context, fingerprint string, data []byte) error
	Clear(ctx context.Context) error
	Close() error
}

// Compile-time interface verification.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PgStore)(nil)
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Get returns a copy of the stored bytes.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[fingerprint]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Put stores a copy of data.
func (s *MemoryStore) Put(_ context.Context, fingerprint string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint] = append([]byte(nil), data...)
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]byte)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
