// Package event defines the observation events that feed the trigger
// evaluator, and a store-backed bus for publishing and claiming them.
package event

import (
	"context"
	"time"

	"github.com/xraph/foreman/id"
)

// Bus provides high-level publish/claim operations over an event Store.
// Event sources (watcher, scheduler, CLI, orchestrator) publish through
// it; the trigger reactor claims and acks.
type Bus struct {
	store Store
}

// NewBus creates an event bus backed by the given store.
func NewBus(store Store) *Bus {
	return &Bus{store: store}
}

// Publish persists the event, making it available for claiming.
func (b *Bus) Publish(ctx context.Context, evt *Event) error {
	return b.store.PublishEvent(ctx, evt)
}

// Claim atomically claims the oldest pending event. Returns nil when no
// event is available.
func (b *Bus) Claim(ctx context.Context) (*Event, error) {
	return b.store.ClaimEvent(ctx)
}

// Ack acknowledges an event, marking it as consumed.
func (b *Bus) Ack(ctx context.Context, eventID id.EventID) error {
	return b.store.AckEvent(ctx, eventID)
}

// Prune deletes acked events older than the given threshold.
func (b *Bus) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	return b.store.PruneEvents(ctx, olderThan)
}

// Store returns the underlying event store.
func (b *Bus) Store() Store { return b.store }
