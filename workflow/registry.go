package workflow

import (
	"fmt"
	"sync"

	"github.com/xraph/foreman"
)

// Registry holds workflow definitions by name. Listing preserves
// registration order. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Definition)}
}

// Register validates def and adds it. Registering a name twice returns
// foreman.ErrDuplicateDefinition.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("%w: %q", foreman.ErrDuplicateDefinition, def.Name)
	}
	r.entries[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Lookup returns the named definition or foreman.ErrDefinitionNotFound.
func (r *Registry) Lookup(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", foreman.ErrDefinitionNotFound, name)
	}
	return def, nil
}

// List returns all definitions in registration order.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
