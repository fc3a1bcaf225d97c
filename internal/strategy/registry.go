package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a brain from configuration.
type Factory func(cfg Config, deps Deps) (Brain, error)

// Registry maps strategy names to brain factories. It is safe for
// concurrent use.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with every built-in brain registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(QuoteBrainName, NewQuoteBrain)
	r.Register(ImbalanceBrainName, NewImbalanceBrain)
	return r
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build looks up cfg.Name and constructs the brain.
func (r *Registry) Build(cfg Config, deps Deps) (Brain, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", cfg.Name)
	}
	b, err := f(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", cfg.Name, err)
	}
	return b, nil
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
