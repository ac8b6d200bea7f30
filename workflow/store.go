package workflow

import (
	"context"

	"github.com/xraph/foreman/id"
)

// ListOpts filters and pages run listings.
type ListOpts struct {
	// Workflow restricts to runs of one definition. Empty matches all.
	Workflow string

	// Statuses restricts to the given statuses. Empty matches all.
	Statuses []Status

	// Limit caps the number of returned runs. Zero means no cap.
	Limit int

	// Offset skips that many runs from the front of the result.
	Offset int
}

// Match reports whether a run passes the filter portion of the opts.
func (o ListOpts) Match(r *Run) bool {
	if o.Workflow != "" && r.Workflow != o.Workflow {
		return false
	}
	if len(o.Statuses) > 0 {
		ok := false
		for _, s := range o.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Store persists runs. Implementations must be safe for concurrent use.
//
// UpdateRun replaces the stored run wholesale; the orchestrator owns a
// run exclusively while it executes, so no read-modify-write conflict
// arises within one engine. Multi-instance deployments serialize run
// ownership through the cluster package instead.
type Store interface {
	// CreateRun persists a new run. Creating an existing ID returns
	// foreman.ErrRunAlreadyExists.
	CreateRun(ctx context.Context, r *Run) error

	// GetRun returns the run or foreman.ErrRunNotFound.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun replaces the stored run. Updating a missing run returns
	// foreman.ErrRunNotFound.
	UpdateRun(ctx context.Context, r *Run) error

	// ListRuns returns runs matching opts, newest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// CountRuns returns the number of runs matching the filter portion
	// of opts (Limit and Offset are ignored).
	CountRuns(ctx context.Context, opts ListOpts) (int, error)

	// DeleteRun removes a run and returns foreman.ErrRunNotFound if it
	// does not exist.
	DeleteRun(ctx context.Context, runID id.RunID) error
}
