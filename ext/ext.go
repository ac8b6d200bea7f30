package ext

import (
	"context"
	"time"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Worker lifecycle hooks
// ──────────────────────────────────────────────────

// WorkerDispatched is called after a worker is selected for execution,
// before it runs.
type WorkerDispatched interface {
	OnWorkerDispatched(ctx context.Context, inv *worker.Invocation) error
}

// WorkerCompleted is called after a worker reports a terminal outcome.
type WorkerCompleted interface {
	OnWorkerCompleted(ctx context.Context, inv *worker.Invocation, out *worker.Outcome, elapsed time.Duration) error
}

// WorkerFailed is called when a worker invocation fails with an error
// (crash, timeout, or malformed outcome) rather than a reported failure.
type WorkerFailed interface {
	OnWorkerFailed(ctx context.Context, inv *worker.Invocation, err error) error
}

// WorkerDeadLettered is called when a failed invocation is moved to the
// dead letter queue.
type WorkerDeadLettered interface {
	OnWorkerDeadLettered(ctx context.Context, inv *worker.Invocation, err error) error
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when a workflow run begins.
type RunStarted interface {
	OnRunStarted(ctx context.Context, r *workflow.Run) error
}

// PhaseStarted is called when a phase begins. For looping phases it
// fires once per iteration.
type PhaseStarted interface {
	OnPhaseStarted(ctx context.Context, r *workflow.Run, phase string, iteration int) error
}

// PhaseCompleted is called when a phase reaches a terminal status.
type PhaseCompleted interface {
	OnPhaseCompleted(ctx context.Context, r *workflow.Run, phase string, status workflow.PhaseStatus, elapsed time.Duration) error
}

// LoopIterated is called after each pass of a validation loop, with the
// predicate verdict for that pass.
type LoopIterated interface {
	OnLoopIterated(ctx context.Context, r *workflow.Run, phase string, iteration int, satisfied bool) error
}

// RunCompleted is called after a run finishes successfully.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// RunFailed is called when a run ends failed. Partially failed runs
// completed, so they fire RunCompleted instead.
type RunFailed interface {
	OnRunFailed(ctx context.Context, r *workflow.Run, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// TriggerMatched is called when an event matches a worker's trigger
// predicate, before the dispatch is enacted.
type TriggerMatched interface {
	OnTriggerMatched(ctx context.Context, evt *event.Event, workerID string) error
}

// ScheduleFired is called when a schedule entry fires and publishes its
// command event.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, entryName string, eventID id.EventID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
