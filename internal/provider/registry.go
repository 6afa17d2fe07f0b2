package provider

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry maps model IDs to their configured adapters. One registry is built
// per dispatch from the credentials available for that dispatch.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry constructs an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds the adapter under its model ID.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.Model()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, a.Model())
	}
	r.adapters[a.Model()] = a
	return nil
}

// Lookup returns the adapter registered for modelID.
func (r *Registry) Lookup(modelID string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return a, nil
}

// Models returns the registered model IDs in sorted order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len reports how many adapters are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
