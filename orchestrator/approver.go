package orchestrator

import (
	"context"

	"github.com/xraph/foreman/workflow"
)

// ApprovalRequest describes one decision put to the approver: advancing
// an interactive run past a completed phase, or firing a trigger whose
// predicate demands confirmation.
type ApprovalRequest struct {
	// Run is the run awaiting advancement. Nil for trigger
	// confirmations, which precede any run.
	Run *workflow.Run

	// Phase is the phase that just completed, for gate requests.
	Phase string

	// Worker is the worker about to fire, for trigger confirmations.
	Worker string

	// Reason is free-form context shown to the operator.
	Reason string
}

// Approver decides interactive gates and trigger confirmations. The CLI
// implements it over the terminal; tests use ApproverFunc.
type Approver interface {
	// Approve returns whether the request may proceed. An error counts
	// as denial and is recorded on the run.
	Approve(ctx context.Context, req ApprovalRequest) (bool, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (bool, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (bool, error) {
	return f(ctx, req)
}

// AutoApprove returns an approver that approves everything.
func AutoApprove() Approver {
	return ApproverFunc(func(context.Context, ApprovalRequest) (bool, error) {
		return true, nil
	})
}
