package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/foreman/worker"
)

// Recover returns middleware that converts worker panics into errors so a
// panicking invoker cannot take down the orchestrator. The stack trace is
// logged at error level.
func Recover() Middleware {
	return RecoverWithLogger(slog.Default())
}

// RecoverWithLogger is Recover with an explicit logger.
func RecoverWithLogger(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *worker.Invocation, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				retErr = fmt.Errorf("panic in worker %s: %v", inv.Worker, r)
				logger.ErrorContext(ctx, "worker panicked",
					slog.String("worker", inv.Worker),
					slog.String("run_id", inv.RunID.String()),
					slog.String("phase", inv.Phase),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()

		return next(ctx)
	}
}
