package circuitbreaker

import (
	"sort"
	"sync"
)

// Registry hands out one breaker per source so every adapter sharing a
// source shares its state, and the health endpoint can see them all.
type Registry struct {
	defaults Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry. defaults applies to every breaker it
// creates; the Name field is overridden per source.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker for a source, creating it on first use
func (r *Registry) For(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := r.defaults
	cfg.Name = name
	cb := NewCircuitBreaker(&cfg)
	r.breakers[name] = cb
	return cb
}

// AllStats snapshots every registered breaker, sorted by source name
func (r *Registry) AllStats() []*Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]*Stats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.GetStats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
