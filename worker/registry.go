package worker

import (
	"context"
	"fmt"
	"sync"
)

// Invoker is the boundary between the engine and a capability
// implementation. The engine calls Invoke with a prepared invocation;
// the implementation is external and opaque.
//
// A nil error with a nil outcome is treated as an invocation error. An
// error return is classified by the executor into a failure outcome.
type Invoker interface {
	Invoke(ctx context.Context, inv *Invocation) (*Outcome, error)
}

// InvokerFunc adapts an ordinary function to the Invoker interface.
type InvokerFunc func(ctx context.Context, inv *Invocation) (*Outcome, error)

// Invoke calls the function.
func (f InvokerFunc) Invoke(ctx context.Context, inv *Invocation) (*Outcome, error) {
	return f(ctx, inv)
}

// registered pairs a descriptor with its invoker.
type registered struct {
	desc    *Descriptor
	invoker Invoker
}

// Registry maps worker IDs to descriptors and invokers. Registration
// order is preserved: List and FindByCapability return stable,
// insertion-ordered results. It is safe for concurrent use, though the
// expected pattern is registration at process start and reads thereafter.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*registered
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registered),
	}
}

// Register adds a worker. It fails with ErrDuplicateWorker if the ID is
// already registered; use RegisterReplace to substitute.
func (r *Registry) Register(desc *Descriptor, invoker Invoker) error {
	return r.register(desc, invoker, false)
}

// RegisterReplace adds a worker, replacing any existing registration with
// the same ID. The replaced worker keeps its original position in the
// registration order.
func (r *Registry) RegisterReplace(desc *Descriptor, invoker Invoker) error {
	return r.register(desc, invoker, true)
}

func (r *Registry) register(desc *Descriptor, invoker Invoker, replace bool) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if invoker == nil {
		return fmt.Errorf("worker %q: nil invoker", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.ID]; exists {
		if !replace {
			return fmt.Errorf("%w: %s", ErrDuplicateWorker, desc.ID)
		}
		r.entries[desc.ID] = &registered{desc: desc, invoker: invoker}
		return nil
	}

	r.entries[desc.ID] = &registered{desc: desc, invoker: invoker}
	r.order = append(r.order, desc.ID)
	return nil
}

// Lookup returns the descriptor for the given worker ID.
func (r *Registry) Lookup(workerID string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[workerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}
	return entry.desc, nil
}

// Invoker returns the invoker for the given worker ID.
func (r *Registry) Invoker(workerID string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[workerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}
	return entry.invoker, nil
}

// FindByCapability returns every descriptor carrying the given tag, in
// registration order. Used for capability references in workflow
// definitions and for focus filtering.
func (r *Registry) FindByCapability(tag string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, workerID := range r.order {
		desc := r.entries[workerID].desc
		if desc.HasCapability(tag) {
			out = append(out, desc)
		}
	}
	return out
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.order))
	for _, workerID := range r.order {
		out = append(out, r.entries[workerID].desc)
	}
	return out
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
