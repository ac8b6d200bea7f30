package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/foreman/worker"
)

// Timeout returns middleware that enforces the invocation's deadline. An
// invocation with zero Timeout runs unbounded. Deadline overruns surface
// as worker.ErrTimeout so callers can classify them.
func Timeout() Middleware {
	return TimeoutWithLogger(slog.Default())
}

// TimeoutWithLogger is Timeout with an explicit logger.
func TimeoutWithLogger(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *worker.Invocation, next Handler) error {
		if inv.Timeout <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, inv.Timeout)
		defer cancel()

		logger.DebugContext(ctx, "invocation deadline set",
			slog.String("worker", inv.Worker),
			slog.Duration("timeout", inv.Timeout),
		)

		err := next(ctx)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return worker.ErrTimeout
		}

		return err
	}
}
