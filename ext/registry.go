package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type workerDispatchedEntry struct {
	name string
	hook WorkerDispatched
}

type workerCompletedEntry struct {
	name string
	hook WorkerCompleted
}

type workerFailedEntry struct {
	name string
	hook WorkerFailed
}

type workerDeadLetteredEntry struct {
	name string
	hook WorkerDeadLettered
}

type runStartedEntry struct {
	name string
	hook RunStarted
}

type phaseStartedEntry struct {
	name string
	hook PhaseStarted
}

type phaseCompletedEntry struct {
	name string
	hook PhaseCompleted
}

type loopIteratedEntry struct {
	name string
	hook LoopIterated
}

type runCompletedEntry struct {
	name string
	hook RunCompleted
}

type runFailedEntry struct {
	name string
	hook RunFailed
}

type triggerMatchedEntry struct {
	name string
	hook TriggerMatched
}

type scheduleFiredEntry struct {
	name string
	hook ScheduleFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	workerDispatched   []workerDispatchedEntry
	workerCompleted    []workerCompletedEntry
	workerFailed       []workerFailedEntry
	workerDeadLettered []workerDeadLetteredEntry
	runStarted         []runStartedEntry
	phaseStarted       []phaseStartedEntry
	phaseCompleted     []phaseCompletedEntry
	loopIterated       []loopIteratedEntry
	runCompleted       []runCompletedEntry
	runFailed          []runFailedEntry
	triggerMatched     []triggerMatchedEntry
	scheduleFired      []scheduleFiredEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkerDispatched); ok {
		r.workerDispatched = append(r.workerDispatched, workerDispatchedEntry{name, h})
	}
	if h, ok := e.(WorkerCompleted); ok {
		r.workerCompleted = append(r.workerCompleted, workerCompletedEntry{name, h})
	}
	if h, ok := e.(WorkerFailed); ok {
		r.workerFailed = append(r.workerFailed, workerFailedEntry{name, h})
	}
	if h, ok := e.(WorkerDeadLettered); ok {
		r.workerDeadLettered = append(r.workerDeadLettered, workerDeadLetteredEntry{name, h})
	}
	if h, ok := e.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, h})
	}
	if h, ok := e.(PhaseStarted); ok {
		r.phaseStarted = append(r.phaseStarted, phaseStartedEntry{name, h})
	}
	if h, ok := e.(PhaseCompleted); ok {
		r.phaseCompleted = append(r.phaseCompleted, phaseCompletedEntry{name, h})
	}
	if h, ok := e.(LoopIterated); ok {
		r.loopIterated = append(r.loopIterated, loopIteratedEntry{name, h})
	}
	if h, ok := e.(RunCompleted); ok {
		r.runCompleted = append(r.runCompleted, runCompletedEntry{name, h})
	}
	if h, ok := e.(RunFailed); ok {
		r.runFailed = append(r.runFailed, runFailedEntry{name, h})
	}
	if h, ok := e.(TriggerMatched); ok {
		r.triggerMatched = append(r.triggerMatched, triggerMatchedEntry{name, h})
	}
	if h, ok := e.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, scheduleFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Worker event emitters
// ──────────────────────────────────────────────────

// EmitWorkerDispatched notifies all extensions that implement WorkerDispatched.
func (r *Registry) EmitWorkerDispatched(ctx context.Context, inv *worker.Invocation) {
	for _, e := range r.workerDispatched {
		if err := e.hook.OnWorkerDispatched(ctx, inv); err != nil {
			r.logHookError("OnWorkerDispatched", e.name, err)
		}
	}
}

// EmitWorkerCompleted notifies all extensions that implement WorkerCompleted.
func (r *Registry) EmitWorkerCompleted(ctx context.Context, inv *worker.Invocation, out *worker.Outcome, elapsed time.Duration) {
	for _, e := range r.workerCompleted {
		if err := e.hook.OnWorkerCompleted(ctx, inv, out, elapsed); err != nil {
			r.logHookError("OnWorkerCompleted", e.name, err)
		}
	}
}

// EmitWorkerFailed notifies all extensions that implement WorkerFailed.
func (r *Registry) EmitWorkerFailed(ctx context.Context, inv *worker.Invocation, invErr error) {
	for _, e := range r.workerFailed {
		if err := e.hook.OnWorkerFailed(ctx, inv, invErr); err != nil {
			r.logHookError("OnWorkerFailed", e.name, err)
		}
	}
}

// EmitWorkerDeadLettered notifies all extensions that implement WorkerDeadLettered.
func (r *Registry) EmitWorkerDeadLettered(ctx context.Context, inv *worker.Invocation, invErr error) {
	for _, e := range r.workerDeadLettered {
		if err := e.hook.OnWorkerDeadLettered(ctx, inv, invErr); err != nil {
			r.logHookError("OnWorkerDeadLettered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Run event emitters
// ──────────────────────────────────────────────────

// EmitRunStarted notifies all extensions that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, run *workflow.Run) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, run); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitPhaseStarted notifies all extensions that implement PhaseStarted.
func (r *Registry) EmitPhaseStarted(ctx context.Context, run *workflow.Run, phase string, iteration int) {
	for _, e := range r.phaseStarted {
		if err := e.hook.OnPhaseStarted(ctx, run, phase, iteration); err != nil {
			r.logHookError("OnPhaseStarted", e.name, err)
		}
	}
}

// EmitPhaseCompleted notifies all extensions that implement PhaseCompleted.
func (r *Registry) EmitPhaseCompleted(ctx context.Context, run *workflow.Run, phase string, status workflow.PhaseStatus, elapsed time.Duration) {
	for _, e := range r.phaseCompleted {
		if err := e.hook.OnPhaseCompleted(ctx, run, phase, status, elapsed); err != nil {
			r.logHookError("OnPhaseCompleted", e.name, err)
		}
	}
}

// EmitLoopIterated notifies all extensions that implement LoopIterated.
func (r *Registry) EmitLoopIterated(ctx context.Context, run *workflow.Run, phase string, iteration int, satisfied bool) {
	for _, e := range r.loopIterated {
		if err := e.hook.OnLoopIterated(ctx, run, phase, iteration, satisfied); err != nil {
			r.logHookError("OnLoopIterated", e.name, err)
		}
	}
}

// EmitRunCompleted notifies all extensions that implement RunCompleted.
func (r *Registry) EmitRunCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	for _, e := range r.runCompleted {
		if err := e.hook.OnRunCompleted(ctx, run, elapsed); err != nil {
			r.logHookError("OnRunCompleted", e.name, err)
		}
	}
}

// EmitRunFailed notifies all extensions that implement RunFailed.
func (r *Registry) EmitRunFailed(ctx context.Context, run *workflow.Run, runErr error) {
	for _, e := range r.runFailed {
		if err := e.hook.OnRunFailed(ctx, run, runErr); err != nil {
			r.logHookError("OnRunFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitTriggerMatched notifies all extensions that implement TriggerMatched.
func (r *Registry) EmitTriggerMatched(ctx context.Context, evt *event.Event, workerID string) {
	for _, e := range r.triggerMatched {
		if err := e.hook.OnTriggerMatched(ctx, evt, workerID); err != nil {
			r.logHookError("OnTriggerMatched", e.name, err)
		}
	}
}

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, entryName string, eventID id.EventID) {
	for _, e := range r.scheduleFired {
		if err := e.hook.OnScheduleFired(ctx, entryName, eventID); err != nil {
			r.logHookError("OnScheduleFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
