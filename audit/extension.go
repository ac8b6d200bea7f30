package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/ext"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.RunStarted         = (*Extension)(nil)
	_ ext.PhaseStarted       = (*Extension)(nil)
	_ ext.PhaseCompleted     = (*Extension)(nil)
	_ ext.LoopIterated       = (*Extension)(nil)
	_ ext.RunCompleted       = (*Extension)(nil)
	_ ext.RunFailed          = (*Extension)(nil)
	_ ext.WorkerDispatched   = (*Extension)(nil)
	_ ext.WorkerCompleted    = (*Extension)(nil)
	_ ext.WorkerFailed       = (*Extension)(nil)
	_ ext.WorkerDeadLettered = (*Extension)(nil)
	_ ext.TriggerMatched     = (*Extension)(nil)
	_ ext.ScheduleFired      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. The
// package ships [NewSlogRecorder] and [NewFileRecorder]; callers with an
// external trail inject their own implementation at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit entry.
	Record(ctx context.Context, e *Entry) error
}

// Entry is one recorded audit fact.
type Entry struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, e *Entry) error

func (f RecorderFunc) Record(ctx context.Context, e *Entry) error {
	return f(ctx, e)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges Foreman lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured entry through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that records through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-trail" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (e *Extension) OnRunStarted(ctx context.Context, r *workflow.Run) error {
	return e.record(ctx, ActionRunStarted, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"workflow", r.Workflow,
		"source", r.Source,
	)
}

// OnPhaseStarted implements ext.PhaseStarted.
func (e *Extension) OnPhaseStarted(ctx context.Context, r *workflow.Run, phase string, iteration int) error {
	return e.record(ctx, ActionPhaseStarted, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"workflow", r.Workflow,
		"phase", phase,
		"iteration", iteration,
	)
}

// OnPhaseCompleted implements ext.PhaseCompleted.
func (e *Extension) OnPhaseCompleted(ctx context.Context, r *workflow.Run, phase string, status workflow.PhaseStatus, elapsed time.Duration) error {
	return e.record(ctx, ActionPhaseCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"workflow", r.Workflow,
		"phase", phase,
		"status", string(status),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnLoopIterated implements ext.LoopIterated.
func (e *Extension) OnLoopIterated(ctx context.Context, r *workflow.Run, phase string, iteration int, satisfied bool) error {
	return e.record(ctx, ActionLoopIterated, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"workflow", r.Workflow,
		"phase", phase,
		"iteration", iteration,
		"satisfied", satisfied,
	)
}

// OnRunCompleted implements ext.RunCompleted.
func (e *Extension) OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	return e.record(ctx, ActionRunCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRun, r.ID.String(), CategoryRun, nil,
		"workflow", r.Workflow,
		"status", string(r.Status),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnRunFailed implements ext.RunFailed.
func (e *Extension) OnRunFailed(ctx context.Context, r *workflow.Run, runErr error) error {
	return e.record(ctx, ActionRunFailed, SeverityCritical, OutcomeFailure,
		ResourceRun, r.ID.String(), CategoryRun, runErr,
		"workflow", r.Workflow,
	)
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerDispatched implements ext.WorkerDispatched.
func (e *Extension) OnWorkerDispatched(ctx context.Context, inv *worker.Invocation) error {
	return e.record(ctx, ActionWorkerDispatched, SeverityInfo, OutcomeSuccess,
		ResourceInvocation, inv.ID.String(), CategoryWorker, nil,
		"worker", inv.Worker,
		"run_id", inv.RunID.String(),
		"phase", inv.Phase,
		"iteration", inv.Iteration,
	)
}

// OnWorkerCompleted implements ext.WorkerCompleted.
func (e *Extension) OnWorkerCompleted(ctx context.Context, inv *worker.Invocation, out *worker.Outcome, elapsed time.Duration) error {
	return e.record(ctx, ActionWorkerCompleted, SeverityInfo, OutcomeSuccess,
		ResourceInvocation, inv.ID.String(), CategoryWorker, nil,
		"worker", inv.Worker,
		"run_id", inv.RunID.String(),
		"status", string(out.Status),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnWorkerFailed implements ext.WorkerFailed. Advisory failures degrade
// instead of failing the phase, so they record as warnings.
func (e *Extension) OnWorkerFailed(ctx context.Context, inv *worker.Invocation, invErr error) error {
	severity := SeverityCritical
	if inv.Advisory {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionWorkerFailed, severity, OutcomeFailure,
		ResourceInvocation, inv.ID.String(), CategoryWorker, invErr,
		"worker", inv.Worker,
		"run_id", inv.RunID.String(),
		"advisory", inv.Advisory,
	)
}

// OnWorkerDeadLettered implements ext.WorkerDeadLettered.
func (e *Extension) OnWorkerDeadLettered(ctx context.Context, inv *worker.Invocation, invErr error) error {
	return e.record(ctx, ActionWorkerDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceInvocation, inv.ID.String(), CategoryWorker, invErr,
		"worker", inv.Worker,
		"run_id", inv.RunID.String(),
	)
}

// ── Trigger and schedule hooks ──────────────────────

// OnTriggerMatched implements ext.TriggerMatched.
func (e *Extension) OnTriggerMatched(ctx context.Context, evt *event.Event, workerID string) error {
	return e.record(ctx, ActionTriggerMatched, SeverityInfo, OutcomeSuccess,
		ResourceEvent, evt.ID.String(), CategoryTrigger, nil,
		"kind", string(evt.Kind),
		"worker", workerID,
	)
}

// OnScheduleFired implements ext.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, entryName string, eventID id.EventID) error {
	return e.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, entryName, CategoryTrigger, nil,
		"event_id", eventID.String(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an entry if the action is enabled. The kvPairs
// argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	entry := &Entry{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, entry); recErr != nil {
		e.logger.Warn("audit: failed to record entry",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
