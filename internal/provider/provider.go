// Package provider defines the capability boundary between the cascade
// core and the LLM backends that execute prompt-style units of work. The
// core resolves adapters by name and never branches on provider identity.
package provider

import (
	"fmt"
	"sort"
	"sync"

	"context"
)

// Request is one prompt-style unit of work. Context carries prior results
// in sequential and hybrid modes and is empty otherwise.
type Request struct {
	// System is the role prompt for this invocation.
	System string
	// Prompt is the sub-task text.
	Prompt string
	// Context is carry-forward material from earlier assignments.
	Context string
}

// Adapter executes one unit of work against a named backend and returns
// text or a typed error (see Error).
type Adapter interface {
	// Name returns the backend name this adapter serves.
	Name() string
	// Invoke executes the request. Implementations must honor ctx
	// cancellation and deadline.
	Invoke(ctx context.Context, req Request) (string, error)
}

// Registry is a named capability lookup table of adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name, replacing any previous
// registration.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %v)", name, r.namesLocked())
	}
	return a, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// namesLocked returns sorted names without acquiring the lock.
// Caller must hold r.mu.
func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
