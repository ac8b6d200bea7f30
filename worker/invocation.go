package worker

import (
	"encoding/json"
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/id"
)

// Invocation is one dispatch of a worker within a workflow run. It is the
// unit the middleware chain and the invoker see, and the record the store
// keeps for aggregation.
type Invocation struct {
	foreman.Entity

	ID    id.InvocationID `json:"id"`
	RunID id.RunID        `json:"run_id"`

	// Workflow, Phase, and Iteration locate the invocation in the run.
	Workflow  string `json:"workflow"`
	Phase     string `json:"phase"`
	Iteration int    `json:"iteration"`

	// Worker is the descriptor ID that was dispatched.
	Worker string `json:"worker"`

	// Advisory mirrors the workflow reference policy: failures of
	// advisory workers degrade the phase instead of failing it.
	Advisory bool `json:"advisory,omitempty"`

	// Inputs are the resolved contract fields handed to the invoker.
	Inputs map[string]json.RawMessage `json:"inputs,omitempty"`

	// Snapshot is the read-only view of the context bus at dispatch time.
	Snapshot map[string]json.RawMessage `json:"snapshot,omitempty"`

	// Timeout is the effective per-invocation deadline. Zero = unlimited.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Outcome is attached when the invocation finishes. Skipped records
	// carry a nil outcome and StatusSkipped.
	Status  Status   `json:"status"`
	Outcome *Outcome `json:"outcome,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Elapsed is the wall-clock execution time.
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// Input decodes the named input field into v.
func (inv *Invocation) Input(name string, v any) error {
	raw, ok := inv.Inputs[name]
	if !ok {
		return ErrUnknownField(name)
	}
	return json.Unmarshal(raw, v)
}

// ErrUnknownField builds the error for an input field absent from the
// resolved inputs. Declared-but-missing fields fail earlier, during
// input resolution, so this signals a field the contract never named.
func ErrUnknownField(name string) error {
	return &UnknownFieldError{Field: name}
}

// UnknownFieldError reports access to an input field outside the
// declared contract.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return "foreman: input field " + e.Field + " not in contract"
}
