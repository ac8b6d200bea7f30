package event

import (
	"context"
	"time"

	"github.com/xraph/foreman/id"
)

// Store defines the persistence contract for events.
type Store interface {
	// PublishEvent persists a new event and makes it available for claiming.
	PublishEvent(ctx context.Context, evt *Event) error

	// GetEvent retrieves an event by ID.
	GetEvent(ctx context.Context, eventID id.EventID) (*Event, error)

	// ClaimEvent atomically claims the oldest unclaimed, unacked event and
	// returns it. Returns nil when no event is available. A claimed event
	// is never returned to another claimer.
	ClaimEvent(ctx context.Context) (*Event, error)

	// AckEvent acknowledges an event, marking it as consumed.
	AckEvent(ctx context.Context, eventID id.EventID) error

	// PruneEvents deletes acked events older than the given threshold and
	// returns how many were removed.
	PruneEvents(ctx context.Context, olderThan time.Duration) (int, error)
}
