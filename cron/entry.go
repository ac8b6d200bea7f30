package cron

import (
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/id"
)

// Entry represents a scheduled dispatch. Exactly one of Worker and
// Workflow names the target.
type Entry struct {
	foreman.Entity

	ID          id.ScheduleID `json:"id"`
	Name        string        `json:"name"`
	Schedule    string        `json:"schedule"`
	Worker      string        `json:"worker,omitempty"`
	Workflow    string        `json:"workflow,omitempty"`
	Payload     []byte        `json:"payload,omitempty"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time    `json:"next_run_at,omitempty"`
	LockedBy    string        `json:"locked_by,omitempty"`
	LockedUntil *time.Time    `json:"locked_until,omitempty"`
	Enabled     bool          `json:"enabled"`
}

// Target selects what a schedule dispatches.
type Target struct {
	worker   string
	workflow string
}

// TargetWorker makes the schedule dispatch a single worker.
func TargetWorker(workerID string) Target { return Target{worker: workerID} }

// TargetWorkflow makes the schedule start a workflow run.
func TargetWorkflow(name string) Target { return Target{workflow: name} }

// Worker returns the worker target, if any.
func (t Target) Worker() string { return t.worker }

// Workflow returns the workflow target, if any.
func (t Target) Workflow() string { return t.workflow }
