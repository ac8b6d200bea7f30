package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/ext"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Broker)(nil)
	_ ext.RunStarted         = (*Broker)(nil)
	_ ext.PhaseStarted       = (*Broker)(nil)
	_ ext.PhaseCompleted     = (*Broker)(nil)
	_ ext.LoopIterated       = (*Broker)(nil)
	_ ext.RunCompleted       = (*Broker)(nil)
	_ ext.RunFailed          = (*Broker)(nil)
	_ ext.WorkerDispatched   = (*Broker)(nil)
	_ ext.WorkerCompleted    = (*Broker)(nil)
	_ ext.WorkerFailed       = (*Broker)(nil)
	_ ext.WorkerDeadLettered = (*Broker)(nil)
	_ ext.TriggerMatched     = (*Broker)(nil)
	_ ext.ScheduleFired      = (*Broker)(nil)
	_ ext.Shutdown           = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. Registered as an extension, it
// receives every lifecycle hook and fans the corresponding events out
// to subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID string → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(topics ...string) *Subscriber {
	sub := NewSubscriber(id.NewSubscriberID(), b.bufferSize, b.defaultCredits)
	b.subscribers.Store(sub.ID().String(), sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID id.SubscriberID, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID.String())
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID id.SubscriberID, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID.String())
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID id.SubscriberID) {
	b.topics.UnsubscribeAll(subscriberID.String())
	if val, ok := b.subscribers.LoadAndDelete(subscriberID.String()); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID id.SubscriberID) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID.String())
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish broadcasts an event to all of its resolved topics.
func (b *Broker) publish(evt *Event) {
	delivered, dropped := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
	b.totalDropped.Add(int64(dropped))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// workerData builds the common payload fields from an invocation.
func workerData(inv *worker.Invocation) WorkerEventData {
	return WorkerEventData{
		InvocationID: inv.ID.String(),
		RunID:        inv.RunID.String(),
		Workflow:     inv.Workflow,
		Phase:        inv.Phase,
		Iteration:    inv.Iteration,
		Worker:       inv.Worker,
		Advisory:     inv.Advisory,
	}
}

// ── Run lifecycle hooks ─────────────────────────────

func (b *Broker) OnRunStarted(_ context.Context, r *workflow.Run) error {
	b.publish(&Event{
		Type:      EventRunStarted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data: mustMarshal(RunEventData{
			RunID:    r.ID.String(),
			Workflow: r.Workflow,
			Status:   string(r.Status),
			Source:   r.Source,
		}),
	})
	return nil
}

func (b *Broker) OnPhaseStarted(_ context.Context, r *workflow.Run, phase string, iteration int) error {
	b.publish(&Event{
		Type:      EventPhaseStarted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data: mustMarshal(PhaseEventData{
			RunID:     r.ID.String(),
			Workflow:  r.Workflow,
			Phase:     phase,
			Iteration: iteration,
		}),
	})
	return nil
}

func (b *Broker) OnPhaseCompleted(_ context.Context, r *workflow.Run, phase string, status workflow.PhaseStatus, elapsed time.Duration) error {
	b.publish(&Event{
		Type:      EventPhaseCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data: mustMarshal(PhaseEventData{
			RunID:     r.ID.String(),
			Workflow:  r.Workflow,
			Phase:     phase,
			Status:    string(status),
			ElapsedMs: elapsed.Milliseconds(),
		}),
	})
	return nil
}

func (b *Broker) OnLoopIterated(_ context.Context, r *workflow.Run, phase string, iteration int, satisfied bool) error {
	b.publish(&Event{
		Type:      EventLoopIterated,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data: mustMarshal(PhaseEventData{
			RunID:     r.ID.String(),
			Workflow:  r.Workflow,
			Phase:     phase,
			Iteration: iteration,
			Satisfied: satisfied,
		}),
	})
	return nil
}

func (b *Broker) OnRunCompleted(_ context.Context, r *workflow.Run, elapsed time.Duration) error {
	b.publish(&Event{
		Type:      EventRunCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data: mustMarshal(RunEventData{
			RunID:     r.ID.String(),
			Workflow:  r.Workflow,
			Status:    string(r.Status),
			Source:    r.Source,
			ElapsedMs: elapsed.Milliseconds(),
		}),
	})
	return nil
}

func (b *Broker) OnRunFailed(_ context.Context, r *workflow.Run, runErr error) error {
	b.publish(&Event{
		Type:      EventRunFailed,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(r.ID.String()),
		Data: mustMarshal(RunEventData{
			RunID:    r.ID.String(),
			Workflow: r.Workflow,
			Status:   string(r.Status),
			Source:   r.Source,
			Error:    runErr.Error(),
		}),
	})
	return nil
}

// ── Worker lifecycle hooks ──────────────────────────

func (b *Broker) OnWorkerDispatched(_ context.Context, inv *worker.Invocation) error {
	b.publish(&Event{
		Type:      EventWorkerDispatched,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(inv.RunID.String()),
		Data:      mustMarshal(workerData(inv)),
	})
	return nil
}

func (b *Broker) OnWorkerCompleted(_ context.Context, inv *worker.Invocation, out *worker.Outcome, elapsed time.Duration) error {
	data := workerData(inv)
	data.Status = string(out.Status)
	data.ElapsedMs = elapsed.Milliseconds()
	b.publish(&Event{
		Type:      EventWorkerCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(inv.RunID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

func (b *Broker) OnWorkerFailed(_ context.Context, inv *worker.Invocation, invErr error) error {
	data := workerData(inv)
	data.Error = invErr.Error()
	b.publish(&Event{
		Type:      EventWorkerFailed,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(inv.RunID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

func (b *Broker) OnWorkerDeadLettered(_ context.Context, inv *worker.Invocation, invErr error) error {
	data := workerData(inv)
	data.Error = invErr.Error()
	b.publish(&Event{
		Type:      EventWorkerDeadLettered,
		Timestamp: time.Now().UTC(),
		Topic:     RunTopic(inv.RunID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

// ── Trigger and schedule hooks ──────────────────────

func (b *Broker) OnTriggerMatched(_ context.Context, evt *event.Event, workerID string) error {
	b.publish(&Event{
		Type:      EventTriggerMatched,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(TriggerEventData{
			EventID: evt.ID.String(),
			Kind:    string(evt.Kind),
			Worker:  workerID,
		}),
	})
	return nil
}

func (b *Broker) OnScheduleFired(_ context.Context, entryName string, eventID id.EventID) error {
	b.publish(&Event{
		Type:      EventScheduleFired,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(ScheduleEventData{
			EntryName: entryName,
			EventID:   eventID.String(),
		}),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
