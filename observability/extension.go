package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/ext"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.RunStarted         = (*MetricsExtension)(nil)
	_ ext.RunCompleted       = (*MetricsExtension)(nil)
	_ ext.RunFailed          = (*MetricsExtension)(nil)
	_ ext.PhaseCompleted     = (*MetricsExtension)(nil)
	_ ext.LoopIterated       = (*MetricsExtension)(nil)
	_ ext.WorkerDeadLettered = (*MetricsExtension)(nil)
	_ ext.TriggerMatched     = (*MetricsExtension)(nil)
	_ ext.ScheduleFired      = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/foreman"

// MetricsExtension records run-level lifecycle metrics. Register it as a
// Foreman extension to track run throughput, phase outcomes, loop
// iterations, dead letters, trigger matches, and schedule fires.
// Worker-level metrics are recorded by the middleware chain instead.
type MetricsExtension struct {
	runsStarted     metric.Int64Counter
	runsCompleted   metric.Int64Counter
	runsFailed      metric.Int64Counter
	runDuration     metric.Float64Histogram
	phasesCompleted metric.Int64Counter
	loopIterations  metric.Int64Counter
	deadLetters     metric.Int64Counter
	triggersMatched metric.Int64Counter
	schedulesFired  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global meter
// provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter is NewMetricsExtension with an explicit
// meter, for tests and callers managing their own provider.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.runsStarted, _ = meter.Int64Counter("foreman.runs.started",
		metric.WithDescription("Workflow runs started"),
		metric.WithUnit("{run}"))
	m.runsCompleted, _ = meter.Int64Counter("foreman.runs.completed",
		metric.WithDescription("Workflow runs completed"),
		metric.WithUnit("{run}"))
	m.runsFailed, _ = meter.Int64Counter("foreman.runs.failed",
		metric.WithDescription("Workflow runs failed"),
		metric.WithUnit("{run}"))
	m.runDuration, _ = meter.Float64Histogram("foreman.run.duration",
		metric.WithDescription("Workflow run duration"),
		metric.WithUnit("s"))
	m.phasesCompleted, _ = meter.Int64Counter("foreman.phases.completed",
		metric.WithDescription("Phases completed"),
		metric.WithUnit("{phase}"))
	m.loopIterations, _ = meter.Int64Counter("foreman.loop.iterations",
		metric.WithDescription("Validation loop iterations"),
		metric.WithUnit("{iteration}"))
	m.deadLetters, _ = meter.Int64Counter("foreman.workers.dead_lettered",
		metric.WithDescription("Invocations sent to the dead letter queue"),
		metric.WithUnit("{invocation}"))
	m.triggersMatched, _ = meter.Int64Counter("foreman.triggers.matched",
		metric.WithDescription("Trigger predicate matches"),
		metric.WithUnit("{match}"))
	m.schedulesFired, _ = meter.Int64Counter("foreman.schedules.fired",
		metric.WithDescription("Schedule entries fired"),
		metric.WithUnit("{fire}"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, r *workflow.Run) error {
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", r.Workflow),
	))
	return nil
}

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("workflow", r.Workflow),
		attribute.String("status", string(r.Status)),
	)
	m.runsCompleted.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnRunFailed implements ext.RunFailed.
func (m *MetricsExtension) OnRunFailed(ctx context.Context, r *workflow.Run, _ error) error {
	m.runsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", r.Workflow),
	))
	return nil
}

// OnPhaseCompleted implements ext.PhaseCompleted.
func (m *MetricsExtension) OnPhaseCompleted(ctx context.Context, r *workflow.Run, phase string, status workflow.PhaseStatus, _ time.Duration) error {
	m.phasesCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", r.Workflow),
		attribute.String("phase", phase),
		attribute.String("status", string(status)),
	))
	return nil
}

// OnLoopIterated implements ext.LoopIterated.
func (m *MetricsExtension) OnLoopIterated(ctx context.Context, r *workflow.Run, phase string, _ int, satisfied bool) error {
	m.loopIterations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", r.Workflow),
		attribute.String("phase", phase),
		attribute.Bool("satisfied", satisfied),
	))
	return nil
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerDeadLettered implements ext.WorkerDeadLettered.
func (m *MetricsExtension) OnWorkerDeadLettered(ctx context.Context, inv *worker.Invocation, _ error) error {
	m.deadLetters.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", inv.Workflow),
		attribute.String("worker", inv.Worker),
	))
	return nil
}

// ── Trigger and schedule hooks ──────────────────────

// OnTriggerMatched implements ext.TriggerMatched.
func (m *MetricsExtension) OnTriggerMatched(ctx context.Context, evt *event.Event, workerID string) error {
	m.triggersMatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(evt.Kind)),
		attribute.String("worker", workerID),
	))
	return nil
}

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, entryName string, _ id.EventID) error {
	m.schedulesFired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entry", entryName),
	))
	return nil
}
