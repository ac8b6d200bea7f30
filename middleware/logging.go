package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/foreman/worker"
)

// Logging returns middleware that logs invocation start, completion, and
// failure with the run coordinates attached to every record.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, inv *worker.Invocation, next Handler) error {
		attrs := []any{
			slog.String("worker", inv.Worker),
			slog.String("run_id", inv.RunID.String()),
			slog.String("workflow", inv.Workflow),
			slog.String("phase", inv.Phase),
			slog.Int("iteration", inv.Iteration),
		}

		logger.DebugContext(ctx, "worker started", attrs...)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		attrs = append(attrs, slog.Duration("elapsed", elapsed))

		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			logger.ErrorContext(ctx, "worker failed", attrs...)

			return err
		}

		logger.InfoContext(ctx, "worker completed", attrs...)

		return nil
	}
}
