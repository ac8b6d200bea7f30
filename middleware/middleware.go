package middleware

import (
	"context"

	"github.com/xraph/foreman/worker"
)

// Handler is the innermost invocation function the chain terminates in.
type Handler func(ctx context.Context) error

// Middleware wraps worker invocation with cross-cutting behavior. It
// receives the invocation being dispatched and must call next to continue
// the chain, or return early to abort.
type Middleware func(ctx context.Context, inv *worker.Invocation, next Handler) error

// Chain composes middleware around a handler. The first middleware in the
// list is the outermost wrapper:
//
//	Chain(h, mw1, mw2): mw1(mw2(h))
func Chain(handler Handler, mws ...Middleware) func(ctx context.Context, inv *worker.Invocation) error {
	return func(ctx context.Context, inv *worker.Invocation) error {
		h := handler
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			inner := h
			h = func(ctx context.Context) error {
				return mw(ctx, inv, inner)
			}
		}

		return h(ctx)
	}
}
