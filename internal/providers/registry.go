package providers

import (
	"fmt"
	"slices"
	"sync"

	"github.com/agitter/manubot/internal/domain"
)

// Registry maps providers to their adapters.
// It provides thread-safe registration and lookup.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Provider]Fetchable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.Provider]Fetchable),
	}
}

// Register adds an adapter, replacing any adapter already registered for
// the same provider.
func (r *Registry) Register(adapter Fetchable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Provider()] = adapter
}

// Get returns the adapter for provider, or nil if none is registered.
func (r *Registry) Get(provider domain.Provider) Fetchable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[provider]
}

// Lookup is like Get but reports a missing adapter as an error that
// unwraps to domain.ErrProviderUnavailable.
func (r *Registry) Lookup(provider domain.Provider) (Fetchable, error) {
	if adapter := r.Get(provider); adapter != nil {
		return adapter, nil
	}
	return nil, fmt.Errorf("%w: no adapter registered for %s", domain.ErrProviderUnavailable, provider)
}

// Providers returns the registered providers in sorted order.
func (r *Registry) Providers() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
