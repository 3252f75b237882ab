package plugin

import (
	"fmt"
	"slices"
	"sync"
)

// Registry manages all available plugin factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new plugin registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a plugin factory under id
func (r *Registry) Register(id string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("plugin %s already registered", id)
	}

	r.factories[id] = f
	return nil
}

// Get retrieves a plugin factory by id
func (r *Registry) Get(id string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.factories[id]
	if !exists {
		return nil, fmt.Errorf("plugin %s not found", id)
	}

	return f, nil
}

// List returns all registered plugin ids, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
