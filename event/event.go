package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/foreman/id"
)

// Kind enumerates the event types the trigger evaluator understands.
type Kind string

const (
	// KindFileChanged is published by the filesystem watcher when a
	// watched path is created, modified, or removed.
	KindFileChanged Kind = "file_changed"
	// KindErrorObserved is published when an external source reports an
	// error (build output, log line, test failure).
	KindErrorObserved Kind = "error_observed"
	// KindExplicitCommand is published when a user or schedule names a
	// worker or workflow directly, bypassing predicate matching.
	KindExplicitCommand Kind = "explicit_command"
	// KindWorkerCompleted is published by the orchestrator after each
	// worker outcome and re-enters the trigger evaluator.
	KindWorkerCompleted Kind = "worker_completed"
)

// Event is an observation that may trigger workers. Events are transient:
// they exist for delivery and are pruned once acked.
type Event struct {
	ID        id.EventID `json:"id"`
	Kind      Kind       `json:"kind"`
	Payload   []byte     `json:"payload,omitempty"`
	Source    string     `json:"source,omitempty"`
	Depth     int        `json:"depth,omitempty"`
	Claimed   bool       `json:"claimed"`
	Acked     bool       `json:"acked"`
	CreatedAt time.Time  `json:"created_at"`
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s: empty payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("event %s: decode payload: %w", e.ID, err)
	}
	return nil
}

// FileChangedPayload is the payload for KindFileChanged.
type FileChangedPayload struct {
	Path string `json:"path"`
	Op   string `json:"op,omitempty"`
}

// ErrorObservedPayload is the payload for KindErrorObserved.
type ErrorObservedPayload struct {
	Message string `json:"message"`
	Origin  string `json:"origin,omitempty"`
}

// ExplicitCommandPayload is the payload for KindExplicitCommand. Exactly
// one of Worker or Workflow names the target; Text carries the free-form
// argument.
type ExplicitCommandPayload struct {
	Worker   string         `json:"worker,omitempty"`
	Workflow string         `json:"workflow,omitempty"`
	Text     string         `json:"text,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

// WorkerCompletedPayload is the payload for KindWorkerCompleted.
type WorkerCompletedPayload struct {
	RunID     string         `json:"run_id"`
	Workflow  string         `json:"workflow"`
	Phase     string         `json:"phase"`
	Iteration int            `json:"iteration"`
	Worker    string         `json:"worker"`
	Status    string         `json:"status"`
	Counts    map[string]int `json:"counts,omitempty"`
}

// New builds an event of the given kind with a JSON-encoded payload.
// It panics if the payload cannot be marshaled (programming error).
func New(kind Kind, payload any, source string) *Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("event: encode %s payload: %v", kind, err))
	}
	return &Event{
		ID:        id.NewEventID(),
		Kind:      kind,
		Payload:   data,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// NewFileChanged builds a KindFileChanged event.
func NewFileChanged(path, op, source string) *Event {
	return New(KindFileChanged, FileChangedPayload{Path: path, Op: op}, source)
}

// NewErrorObserved builds a KindErrorObserved event.
func NewErrorObserved(message, origin, source string) *Event {
	return New(KindErrorObserved, ErrorObservedPayload{Message: message, Origin: origin}, source)
}

// NewExplicitCommand builds a KindExplicitCommand event.
func NewExplicitCommand(payload ExplicitCommandPayload, source string) *Event {
	return New(KindExplicitCommand, payload, source)
}

// NewWorkerCompleted builds a KindWorkerCompleted event at the given
// cascade depth.
func NewWorkerCompleted(payload WorkerCompletedPayload, depth int) *Event {
	evt := New(KindWorkerCompleted, payload, "orchestrator")
	evt.Depth = depth
	return evt
}

// Text extracts the free-form text a content predicate matches against:
// the error message for KindErrorObserved, the command text for
// KindExplicitCommand, the path for KindFileChanged. Returns "" when the
// payload cannot be decoded.
func (e *Event) Text() string {
	switch e.Kind {
	case KindErrorObserved:
		var p ErrorObservedPayload
		if e.Decode(&p) == nil {
			return p.Message
		}
	case KindExplicitCommand:
		var p ExplicitCommandPayload
		if e.Decode(&p) == nil {
			return p.Text
		}
	case KindFileChanged:
		var p FileChangedPayload
		if e.Decode(&p) == nil {
			return p.Path
		}
	case KindWorkerCompleted:
	}
	return ""
}

// Path extracts the file path for KindFileChanged events, "" otherwise.
func (e *Event) Path() string {
	if e.Kind != KindFileChanged {
		return ""
	}
	var p FileChangedPayload
	if e.Decode(&p) != nil {
		return ""
	}
	return p.Path
}
