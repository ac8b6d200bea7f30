// Package stream provides a real-time broker for Foreman lifecycle
// events. It implements the ext hook interfaces and fans events out to
// subscribers via topic-based pub/sub, so a CLI following a run or a
// dashboard on the firehose sees phases, workers, and loop verdicts as
// they happen.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Run events.
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	// Phase events. Loop iterations publish one loop.iterated per pass.
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventLoopIterated   EventType = "loop.iterated"

	// Worker events.
	EventWorkerDispatched   EventType = "worker.dispatched"
	EventWorkerCompleted    EventType = "worker.completed"
	EventWorkerFailed       EventType = "worker.failed"
	EventWorkerDeadLettered EventType = "worker.dead_lettered"

	// Trigger and schedule events.
	EventTriggerMatched EventType = "trigger.matched"
	EventScheduleFired  EventType = "schedule.fired"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity channel this event was published on,
	// e.g. "run:run_01h...". Empty for events with no owning entity.
	Topic string `json:"topic,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// RunEventData is the payload for run lifecycle events.
type RunEventData struct {
	RunID     string `json:"run_id"`
	Workflow  string `json:"workflow"`
	Status    string `json:"status"`
	Source    string `json:"source,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PhaseEventData is the payload for phase and loop events.
type PhaseEventData struct {
	RunID     string `json:"run_id"`
	Workflow  string `json:"workflow"`
	Phase     string `json:"phase"`
	Iteration int    `json:"iteration"`
	Status    string `json:"status,omitempty"`
	Satisfied bool   `json:"satisfied"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
}

// WorkerEventData is the payload for worker lifecycle events.
type WorkerEventData struct {
	InvocationID string `json:"invocation_id"`
	RunID        string `json:"run_id"`
	Workflow     string `json:"workflow"`
	Phase        string `json:"phase"`
	Iteration    int    `json:"iteration"`
	Worker       string `json:"worker"`
	Advisory     bool   `json:"advisory,omitempty"`
	Status       string `json:"status,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}

// TriggerEventData is the payload for trigger.matched events.
type TriggerEventData struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`
	Worker  string `json:"worker"`
}

// ScheduleEventData is the payload for schedule.fired events.
type ScheduleEventData struct {
	EntryName string `json:"entry_name"`
	EventID   string `json:"event_id"`
}
