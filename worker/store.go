package worker

import (
	"context"

	"github.com/xraph/foreman/id"
)

// ListOpts controls pagination for invocation list queries.
type ListOpts struct {
	// Limit is the maximum number of invocations to return. Zero means
	// no limit.
	Limit int
	// Offset is the number of invocations to skip.
	Offset int
}

// Store defines the persistence contract for invocation records.
type Store interface {
	// AppendInvocation persists a finished (or skipped) invocation record.
	AppendInvocation(ctx context.Context, inv *Invocation) error

	// GetInvocation retrieves an invocation by ID.
	GetInvocation(ctx context.Context, invID id.InvocationID) (*Invocation, error)

	// ListInvocations returns every invocation of a run in append order.
	ListInvocations(ctx context.Context, runID id.RunID, opts ListOpts) ([]*Invocation, error)

	// CountInvocations returns the number of invocations recorded for a run.
	CountInvocations(ctx context.Context, runID id.RunID) (int64, error)
}
