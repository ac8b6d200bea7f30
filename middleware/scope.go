package middleware

import (
	"context"

	"github.com/xraph/foreman/scope"
	"github.com/xraph/foreman/worker"
)

// Scope returns middleware that restores the invocation's run coordinates
// into the context so downstream code can correlate logs and lookups with
// the exact point in the run without threading the invocation through.
func Scope() Middleware {
	return func(ctx context.Context, inv *worker.Invocation, next Handler) error {
		ctx = scope.Restore(ctx, scope.Scope{
			RunID:     inv.RunID,
			Workflow:  inv.Workflow,
			Phase:     inv.Phase,
			Iteration: inv.Iteration,
			Worker:    inv.Worker,
		})

		return next(ctx)
	}
}
