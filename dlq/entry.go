package dlq

import (
	"encoding/json"
	"time"

	"github.com/xraph/foreman/id"
)

// Entry represents a worker invocation that failed terminally and was
// moved to the dead letter queue for inspection or replay.
type Entry struct {
	ID           id.DeadLetterID            `json:"id"`
	InvocationID id.InvocationID            `json:"invocation_id"`
	RunID        id.RunID                   `json:"run_id"`
	Workflow     string                     `json:"workflow"`
	Phase        string                     `json:"phase"`
	Worker       string                     `json:"worker"`
	Iteration    int                        `json:"iteration"`
	Inputs       map[string]json.RawMessage `json:"inputs,omitempty"`
	Error        string                     `json:"error"`
	FailedAt     time.Time                  `json:"failed_at"`
	ReplayedAt   *time.Time                 `json:"replayed_at,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
}
