package workflow

import (
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/id"
)

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusPending marks a run that is created but not yet started.
	StatusPending Status = "pending"

	// StatusRunning marks a run with at least one phase in flight.
	StatusRunning Status = "running"

	// StatusSucceeded marks a run whose phases all succeeded.
	StatusSucceeded Status = "succeeded"

	// StatusPartiallyFailed marks a degraded run: at least one phase
	// exhausted its validation loop without satisfying the exit
	// predicate, or recorded only advisory failures, while nothing
	// hard-failed.
	StatusPartiallyFailed Status = "partially_failed"

	// StatusFailed marks a run where a phase hard-failed, a contract
	// violation or denied approval aborted execution, or no phase ran
	// to success at all.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is final. Terminal runs never
// change status again; the aggregator relies on this.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusPartiallyFailed, StatusFailed:
		return true
	}
	return false
}

// PhaseStatus is the lifecycle state of one phase within a run.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseSucceeded PhaseStatus = "succeeded"

	// PhasePartiallyFailed marks a looping phase that exhausted
	// MaxIterations without satisfying its exit predicate.
	PhasePartiallyFailed PhaseStatus = "partially_failed"

	PhaseFailed PhaseStatus = "failed"

	// PhaseSkipped marks a phase that never dispatched: excluded by a
	// focus filter, or unreachable after an earlier phase aborted the
	// run.
	PhaseSkipped PhaseStatus = "skipped"
)

// Terminal reports whether the phase status is final.
func (s PhaseStatus) Terminal() bool {
	switch s {
	case PhaseSucceeded, PhasePartiallyFailed, PhaseFailed, PhaseSkipped:
		return true
	}
	return false
}

// PhaseCursor tracks one phase's progress inside a run.
type PhaseCursor struct {
	// Index is the phase's position in the definition's declaration
	// order. Reports rebuild the ordered phase list from it without
	// re-resolving the definition.
	Index int `json:"index"`

	// Status of the phase.
	Status PhaseStatus `json:"status"`

	// Iterations completed so far. 1 after the first pass; only loops
	// go higher.
	Iterations int `json:"iterations"`

	// Error holds the message of the failure that ended the phase, if
	// any.
	Error string `json:"error,omitempty"`
}

// Run is one execution of a workflow definition.
type Run struct {
	foreman.Entity

	// ID is the unique run identifier (run_...).
	ID id.RunID `json:"id"`

	// Workflow names the definition this run executes.
	Workflow string `json:"workflow"`

	// Status of the run.
	Status Status `json:"status"`

	// Phases maps phase name to its cursor. Every phase of the
	// definition gets a cursor when the run is created.
	Phases map[string]*PhaseCursor `json:"phases"`

	// Focus restricts dispatch to workers whose ID or capabilities
	// intersect these tags. Empty means no restriction.
	Focus []string `json:"focus,omitempty"`

	// Interactive requires approval before each phase starts.
	Interactive bool `json:"interactive,omitempty"`

	// MaxIterations overrides every loop's iteration cap when > 0.
	MaxIterations int `json:"max_iterations,omitempty"`

	// Depth is the trigger-cascade depth that created this run. Zero
	// for runs started directly; each WorkerCompleted-triggered run is
	// one deeper than the run that emitted the event.
	Depth int `json:"depth,omitempty"`

	// Source describes what started the run ("cli", "event:evt_...",
	// "schedule:sched_...").
	Source string `json:"source,omitempty"`

	// Error holds the message of the run-level failure, if any.
	Error string `json:"error,omitempty"`

	// StartedAt is when the first phase began.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRun creates a pending run for def with a cursor per phase.
func NewRun(def *Definition, now time.Time) *Run {
	r := &Run{
		Entity: foreman.Entity{
			CreatedAt: now,
			UpdatedAt: now,
		},
		ID:       id.NewRunID(),
		Workflow: def.Name,
		Status:   StatusPending,
		Phases:   make(map[string]*PhaseCursor, len(def.Phases)),
	}
	for i := range def.Phases {
		r.Phases[def.Phases[i].Name] = &PhaseCursor{Index: i, Status: PhasePending}
	}
	return r
}

// Phase returns the cursor for the named phase, or nil.
func (r *Run) Phase(name string) *PhaseCursor {
	return r.Phases[name]
}

// Clone returns a deep copy of the run. Stores hand out clones so callers
// can mutate cursors without racing against concurrent reads.
func (r *Run) Clone() *Run {
	cp := *r
	cp.Phases = make(map[string]*PhaseCursor, len(r.Phases))
	for name, c := range r.Phases {
		cc := *c
		cp.Phases[name] = &cc
	}
	if r.Focus != nil {
		cp.Focus = append([]string(nil), r.Focus...)
	}
	return &cp
}

// MarkRunning transitions pending → running and stamps StartedAt.
func (r *Run) MarkRunning(now time.Time) {
	r.Status = StatusRunning
	r.StartedAt = &now
	r.Touch(now)
}

// MarkCompleted transitions to a terminal status and stamps
// CompletedAt. It is a no-op if status is not terminal.
func (r *Run) MarkCompleted(status Status, now time.Time) {
	if !status.Terminal() {
		return
	}
	r.Status = status
	r.CompletedAt = &now
	r.Touch(now)
}

// Elapsed returns the wall time from start to completion, or to now for
// runs still in flight. Zero before the run starts.
func (r *Run) Elapsed(now time.Time) time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := now
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(*r.StartedAt)
}

// Derive computes the terminal run status from the phase cursors. Any
// hard-failed phase fails the run; exhausted loops and advisory-only
// failures degrade it to partially_failed; otherwise it succeeded.
// Skipped phases count toward neither side, but a run in which nothing
// succeeded at all derives failed.
func (r *Run) Derive() Status {
	var ok, soft, hard int
	for _, c := range r.Phases {
		switch c.Status {
		case PhaseSucceeded:
			ok++
		case PhasePartiallyFailed:
			soft++
		case PhaseFailed:
			hard++
		}
	}
	switch {
	case hard > 0:
		return StatusFailed
	case soft > 0:
		return StatusPartiallyFailed
	case ok > 0:
		return StatusSucceeded
	default:
		return StatusFailed
	}
}
