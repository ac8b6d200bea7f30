package bus

import (
	"context"

	"github.com/xraph/foreman/id"
)

// Store defines the persistence contract for context bus entries.
type Store interface {
	// PutEntry appends an entry with insert-only semantics: if the entry's
	// key already holds a value for the run, it fails with ErrKeyCollision
	// and the existing value is untouched. The collision check and insert
	// are atomic. The store assigns Entry.Seq, monotonic within the run.
	PutEntry(ctx context.Context, runID id.RunID, entry *Entry) error

	// GetEntry retrieves the entry at the exact key.
	// Returns foreman.ErrEntryNotFound when absent.
	GetEntry(ctx context.Context, runID id.RunID, key Key) (*Entry, error)

	// LatestField returns the entry with the highest Seq whose key names
	// the given field, or nil when the field was never written.
	LatestField(ctx context.Context, runID id.RunID, field string) (*Entry, error)

	// ListEntries returns all entries of the run in Seq order.
	ListEntries(ctx context.Context, runID id.RunID) ([]*Entry, error)

	// DeleteEntries removes every entry of the run.
	DeleteEntries(ctx context.Context, runID id.RunID) error
}
