package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/foreman/worker"
)

const tracerName = "github.com/xraph/foreman"

// Tracing returns middleware that wraps each worker invocation in an
// OpenTelemetry span using the global tracer provider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *worker.Invocation, next Handler) error {
		ctx, span := tracer.Start(ctx, "foreman.worker.invoke",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("foreman.worker", inv.Worker),
				attribute.String("foreman.run.id", inv.RunID.String()),
				attribute.String("foreman.workflow", inv.Workflow),
				attribute.String("foreman.phase", inv.Phase),
				attribute.Int("foreman.iteration", inv.Iteration),
			),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			return err
		}

		span.SetStatus(codes.Ok, "")

		return nil
	}
}
