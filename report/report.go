// Package report aggregates the persisted records of a finished run
// into one final result: per-phase, per-iteration worker outcomes with
// severity totals and the process exit code.
//
// Aggregation is a pure function over the run and its invocation
// records, so re-running it for the same run always yields the same
// report. No outcome is ever dropped: every recorded invocation of
// every iteration appears, and diagnostics accumulate across loop
// iterations.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// ErrRunNotTerminal is returned when aggregation is requested for a run
// still pending or in flight.
var ErrRunNotTerminal = errors.New("foreman: run not terminal")

// Counts tallies diagnostics by severity across whatever scope holds it.
type Counts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Total returns the sum over all severities.
func (c Counts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// add accumulates the diagnostics of one outcome.
func (c *Counts) add(diags []worker.Diagnostic) {
	for _, d := range diags {
		switch d.Severity {
		case worker.SeverityCritical:
			c.Critical++
		case worker.SeverityHigh:
			c.High++
		case worker.SeverityMedium:
			c.Medium++
		case worker.SeverityLow:
			c.Low++
		case worker.SeverityInfo:
			c.Info++
		}
	}
}

// WorkerResult is the reported outcome of one invocation.
type WorkerResult struct {
	Worker      string              `json:"worker"`
	Status      worker.Status       `json:"status"`
	Advisory    bool                `json:"advisory,omitempty"`
	Diagnostics []worker.Diagnostic `json:"diagnostics,omitempty"`
	Error       string              `json:"error,omitempty"`
	Elapsed     time.Duration       `json:"elapsed,omitempty"`
}

// IterationSummary groups the worker results of one loop pass, in
// dispatch order.
type IterationSummary struct {
	Iteration int            `json:"iteration"`
	Workers   []WorkerResult `json:"workers"`
}

// PhaseSummary is the aggregated view of one phase. Phases that never
// dispatched (skipped) carry an empty iteration list.
type PhaseSummary struct {
	Phase      string               `json:"phase"`
	Status     workflow.PhaseStatus `json:"status"`
	Iterations []IterationSummary   `json:"iterations,omitempty"`
	Counts     Counts               `json:"counts"`
	Error      string               `json:"error,omitempty"`
}

// FinalResult is the complete report of a terminal run.
type FinalResult struct {
	RunID    string          `json:"run_id"`
	Workflow string          `json:"workflow"`
	Status   workflow.Status `json:"status"`

	// Phases in workflow declaration order, one entry per phase of the
	// definition regardless of whether it dispatched.
	Phases []PhaseSummary `json:"phases"`

	// Counts totals diagnostics across every phase and iteration.
	Counts Counts `json:"counts"`

	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}

// ExitCode maps the run status onto the process exit convention:
// 0 succeeded, 2 partially failed, 1 anything else.
func (r *FinalResult) ExitCode() int {
	switch r.Status {
	case workflow.StatusSucceeded:
		return 0
	case workflow.StatusPartiallyFailed:
		return 2
	default:
		return 1
	}
}

// Aggregate builds the final result for a terminal run from its
// invocation records. Records are expected in append order, the order
// the store's ListInvocations returns them.
func Aggregate(run *workflow.Run, records []*worker.Invocation) (*FinalResult, error) {
	if !run.Status.Terminal() {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotTerminal, run.ID, run.Status)
	}

	result := &FinalResult{
		RunID:    run.ID.String(),
		Workflow: run.Workflow,
		Status:   run.Status,
		Elapsed:  run.Elapsed(time.Now().UTC()),
		Error:    run.Error,
	}

	byPhase := make(map[string][]*worker.Invocation)
	for _, inv := range records {
		byPhase[inv.Phase] = append(byPhase[inv.Phase], inv)
	}

	type cursorEntry struct {
		name   string
		cursor *workflow.PhaseCursor
	}
	ordered := make([]cursorEntry, 0, len(run.Phases))
	for name, cursor := range run.Phases {
		ordered = append(ordered, cursorEntry{name, cursor})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].cursor.Index < ordered[j].cursor.Index
	})

	for _, entry := range ordered {
		summary := PhaseSummary{
			Phase:  entry.name,
			Status: entry.cursor.Status,
			Error:  entry.cursor.Error,
		}
		summary.Iterations = groupIterations(byPhase[entry.name], &summary.Counts)
		result.Counts.Critical += summary.Counts.Critical
		result.Counts.High += summary.Counts.High
		result.Counts.Medium += summary.Counts.Medium
		result.Counts.Low += summary.Counts.Low
		result.Counts.Info += summary.Counts.Info
		result.Phases = append(result.Phases, summary)
	}
	return result, nil
}

// groupIterations splits a phase's records into per-iteration summaries,
// accumulating severity counts on the way. Iterations ascend; within one
// iteration, dispatch order is preserved.
func groupIterations(records []*worker.Invocation, counts *Counts) []IterationSummary {
	if len(records) == 0 {
		return nil
	}

	byIteration := make(map[int][]WorkerResult)
	iterations := make([]int, 0, 4)
	for _, inv := range records {
		res := WorkerResult{
			Worker:   inv.Worker,
			Status:   inv.Status,
			Advisory: inv.Advisory,
			Elapsed:  inv.Elapsed,
		}
		if inv.Outcome != nil {
			res.Diagnostics = inv.Outcome.Diagnostics
			res.Error = inv.Outcome.Error
			counts.add(inv.Outcome.Diagnostics)
		}
		if _, seen := byIteration[inv.Iteration]; !seen {
			iterations = append(iterations, inv.Iteration)
		}
		byIteration[inv.Iteration] = append(byIteration[inv.Iteration], res)
	}
	sort.Ints(iterations)

	out := make([]IterationSummary, 0, len(iterations))
	for _, n := range iterations {
		out = append(out, IterationSummary{Iteration: n, Workers: byIteration[n]})
	}
	return out
}
