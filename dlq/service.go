package dlq

import (
	"context"
	"time"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store  Store
	events event.Store
}

// NewService creates a DLQ service. The event store is used by Replay
// to publish the re-dispatch command.
func NewService(store Store, events event.Store) *Service {
	return &Service{store: store, events: events}
}

// Push builds a DLQ Entry from a failed invocation and persists it.
// The error string is captured from the terminal invocation error.
func (s *Service) Push(ctx context.Context, inv *worker.Invocation, invErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:           id.NewDeadLetterID(),
		InvocationID: inv.ID,
		RunID:        inv.RunID,
		Workflow:     inv.Workflow,
		Phase:        inv.Phase,
		Worker:       inv.Worker,
		Iteration:    inv.Iteration,
		Inputs:       inv.Inputs,
		Error:        invErr.Error(),
		FailedAt:     now,
		CreatedAt:    now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// DLQStore returns the underlying DLQ store for direct access
// to List, Get, Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
