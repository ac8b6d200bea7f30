// Package scope provides helpers to capture and restore run coordinates
// (run, workflow, phase, iteration, worker) from/to context.Context.
//
// The orchestrator restores scope before invoking a worker so everything
// downstream — invokers, loggers, extensions — can correlate its output
// with the exact point in the run that produced it.
package scope

import (
	"context"

	"github.com/xraph/foreman/id"
)

// Scope identifies where in a workflow run the current code executes.
type Scope struct {
	RunID     id.RunID
	Workflow  string
	Phase     string
	Iteration int
	Worker    string
}

// IsZero reports whether the scope carries no coordinates.
func (s Scope) IsZero() bool {
	return s.RunID.IsNil() && s.Workflow == "" && s.Phase == "" && s.Worker == ""
}

type ctxKey struct{}

// Restore attaches a scope to the context. If the scope is zero, the
// context is returned unchanged (no-op).
func Restore(ctx context.Context, s Scope) context.Context {
	if s.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, s)
}

// From extracts the scope from the context.
// Returns false if no scope is present.
func From(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok
}
