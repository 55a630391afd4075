// Package scanner defines the pluggable lookup capability interface and the
// registry the orchestration engine resolves capabilities from.
package scanner

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Scanner is a pluggable lookup capability invoked against a target string.
// Execute must honor context cancellation; the engine bounds each call with
// the task's timeout.
type Scanner interface {
	// Name returns the capability identifier (matches task.Capability).
	Name() string
	// Execute performs the lookup and returns an opaque result payload.
	Execute(ctx context.Context, target string, options map[string]any) (any, error)
}

// Factory constructs a scanner instance. The engine resolves a factory at
// dispatch time so scanners can hold per-invocation state.
type Factory func() Scanner

// Registry maps capability names to scanner factories. Engine-owned, never
// a package-level singleton, so multiple engines can coexist in tests.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string // insertion order for deterministic listing
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a capability factory. Re-registering a name replaces the
// previous factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Resolve returns a scanner instance for the capability name.
func (r *Registry) Resolve(name string) (Scanner, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, eris.Errorf("scanner: unknown capability %q", name)
	}
	return f(), nil
}

// Has reports whether a capability is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns registered capability names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
