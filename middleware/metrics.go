package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/foreman/worker"
)

const meterName = "github.com/xraph/foreman"

// Metrics returns middleware that records invocation duration and count
// using the global meter provider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	duration, dErr := meter.Float64Histogram(
		"foreman.worker.duration",
		metric.WithDescription("Worker invocation duration"),
		metric.WithUnit("s"),
	)
	count, cErr := meter.Int64Counter(
		"foreman.worker.invocations",
		metric.WithDescription("Total worker invocations"),
		metric.WithUnit("{invocation}"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract
	_ = cErr

	return func(ctx context.Context, inv *worker.Invocation, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("worker", inv.Worker),
			attribute.String("workflow", inv.Workflow),
			attribute.String("phase", inv.Phase),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed.Seconds(), attrs)
		count.Add(ctx, 1, attrs)

		return err
	}
}
