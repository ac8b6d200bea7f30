package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/ext"
	"github.com/xraph/foreman/orchestrator"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Starter launches runs for matched events. *orchestrator.Orchestrator
// satisfies it.
type Starter interface {
	// Start executes a run of a registered workflow.
	Start(ctx context.Context, name string, opts orchestrator.StartOptions) (*workflow.Run, error)
	// StartDefinition executes a run of an unregistered definition.
	StartDefinition(ctx context.Context, def *workflow.Definition, opts orchestrator.StartOptions) (*workflow.Run, error)
}

// Reactor is the long-lived consumer between the event bus and the
// orchestrator. It claims events, evaluates triggers, and launches runs:
// a matched set of workers forms an ad-hoc single-phase parallel
// definition, so one event yields at most one run regardless of fan-out.
//
// WorkerCompleted events carry a cascade depth; events past the
// configured bound are acked and dropped so trigger chains terminate.
type Reactor struct {
	events    *event.Bus
	evaluator *Evaluator
	starter   Starter

	extensions *ext.Registry
	approver   orchestrator.Approver

	concurrency     int
	pollInterval    time.Duration
	pruneInterval   time.Duration
	pruneAge        time.Duration
	maxTriggerDepth int

	logger *slog.Logger

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeRuns map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// ReactorOption configures a Reactor.
type ReactorOption func(*Reactor)

// WithConcurrency sets the number of consumer goroutines.
func WithConcurrency(n int) ReactorOption {
	return func(r *Reactor) { r.concurrency = n }
}

// WithPollInterval sets how long consumers sleep when the bus is empty.
func WithPollInterval(d time.Duration) ReactorOption {
	return func(r *Reactor) { r.pollInterval = d }
}

// WithPruneInterval sets how often acked events are pruned. A zero value
// disables pruning.
func WithPruneInterval(d time.Duration) ReactorOption {
	return func(r *Reactor) { r.pruneInterval = d }
}

// WithPruneAge sets the minimum age of acked events eligible for
// pruning.
func WithPruneAge(d time.Duration) ReactorOption {
	return func(r *Reactor) { r.pruneAge = d }
}

// WithMaxTriggerDepth sets the cascade depth past which events are
// dropped.
func WithMaxTriggerDepth(n int) ReactorOption {
	return func(r *Reactor) { r.maxTriggerDepth = n }
}

// WithApprover sets the approver consulted for predicates that require
// confirmation. Without one, confirm matches are logged and skipped.
func WithApprover(a orchestrator.Approver) ReactorOption {
	return func(r *Reactor) { r.approver = a }
}

// WithExtensions sets the extension registry receiving trigger hooks.
func WithExtensions(reg *ext.Registry) ReactorOption {
	return func(r *Reactor) { r.extensions = reg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReactorOption {
	return func(r *Reactor) { r.logger = logger }
}

// NewReactor creates a reactor consuming the given event bus.
func NewReactor(events *event.Bus, evaluator *Evaluator, starter Starter, opts ...ReactorOption) *Reactor {
	r := &Reactor{
		events:          events,
		evaluator:       evaluator,
		starter:         starter,
		concurrency:     4,
		pollInterval:    time.Second,
		pruneInterval:   time.Minute,
		pruneAge:        10 * time.Minute,
		maxTriggerDepth: 3,
		logger:          slog.Default(),
		stopCh:          make(chan struct{}),
		activeRuns:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.extensions == nil {
		r.extensions = ext.NewRegistry(r.logger)
	}
	return r
}

// Start launches the consumer goroutines. It returns immediately.
func (r *Reactor) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	r.logger.Info("trigger reactor starting",
		slog.Int("concurrency", r.concurrency),
		slog.Duration("poll_interval", r.pollInterval),
	)

	for range r.concurrency {
		r.wg.Add(1)
		go r.consumeLoop()
	}

	if r.pruneInterval > 0 {
		r.wg.Add(1)
		go r.pruneLoop()
	}

	return nil
}

// Stop signals the consumers to stop and waits for them to finish. If
// the context expires first, in-flight trigger runs are cancelled.
func (r *Reactor) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.logger.Info("trigger reactor stopping")

	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("trigger reactor stopped gracefully")
	case <-ctx.Done():
		r.logger.Warn("trigger reactor shutdown timed out, cancelling active runs")
		r.cancelActiveRuns()
		r.wg.Wait()
	}

	return nil
}

// consumeLoop is run by each consumer goroutine.
func (r *Reactor) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		evt, err := r.events.Claim(context.Background())
		if err != nil {
			r.logger.Error("claim event", slog.String("error", err.Error()))
			r.sleep()
			continue
		}
		if evt == nil {
			r.sleep()
			continue
		}

		r.react(evt)

		if ackErr := r.events.Ack(context.Background(), evt.ID); ackErr != nil {
			r.logger.Error("ack event",
				slog.String("event_id", evt.ID.String()),
				slog.String("error", ackErr.Error()),
			)
		}
	}
}

// react evaluates one claimed event and launches at most one run.
func (r *Reactor) react(evt *event.Event) {
	if evt.Depth > r.maxTriggerDepth {
		r.logger.Info("event dropped, cascade depth exhausted",
			slog.String("event_id", evt.ID.String()),
			slog.String("kind", string(evt.Kind)),
			slog.Int("depth", evt.Depth),
		)
		return
	}

	if evt.Kind == event.KindExplicitCommand {
		var p event.ExplicitCommandPayload
		if err := evt.Decode(&p); err != nil {
			r.logger.Error("decode command event",
				slog.String("event_id", evt.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		if p.Workflow != "" {
			r.launch(evt, func(ctx context.Context, opts orchestrator.StartOptions) (*workflow.Run, error) {
				return r.starter.Start(ctx, p.Workflow, opts)
			})
			return
		}
	}

	matches, err := r.evaluator.Evaluate(evt)
	if err != nil {
		if errors.Is(err, worker.ErrUnknownWorker) {
			r.logger.Warn("trigger names unknown worker",
				slog.String("event_id", evt.ID.String()),
				slog.String("error", err.Error()),
			)
		} else {
			r.logger.Error("evaluate event",
				slog.String("event_id", evt.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if len(matches) == 0 {
		r.logger.Debug("no trigger matched",
			slog.String("event_id", evt.ID.String()),
			slog.String("kind", string(evt.Kind)),
		)
		return
	}

	for _, m := range matches {
		r.extensions.EmitTriggerMatched(context.Background(), evt, m.WorkerID)
	}

	fired := r.confirm(evt, matches)
	if len(fired) == 0 {
		return
	}

	def := adHocDefinition(evt, fired)
	r.launch(evt, func(ctx context.Context, opts orchestrator.StartOptions) (*workflow.Run, error) {
		return r.starter.StartDefinition(ctx, def, opts)
	})
}

// confirm filters out matches whose predicate requires an approval that
// was not granted. Without an approver such matches are skipped.
func (r *Reactor) confirm(evt *event.Event, matches []Match) []Match {
	fired := make([]Match, 0, len(matches))
	for _, m := range matches {
		if !m.Predicate.Confirm {
			fired = append(fired, m)
			continue
		}
		if r.approver == nil {
			r.logger.Info("trigger match requires confirmation, no approver configured",
				slog.String("event_id", evt.ID.String()),
				slog.String("worker", m.WorkerID),
			)
			continue
		}
		approved, err := r.approver.Approve(context.Background(), orchestrator.ApprovalRequest{
			Worker: m.WorkerID,
			Reason: fmt.Sprintf("%s event %s", evt.Kind, evt.ID),
		})
		if err != nil || !approved {
			r.logger.Info("trigger match not confirmed",
				slog.String("event_id", evt.ID.String()),
				slog.String("worker", m.WorkerID),
			)
			continue
		}
		fired = append(fired, m)
	}
	return fired
}

// launch executes the run on the consumer goroutine, tracking its cancel
// func so a timed-out shutdown can abort it.
func (r *Reactor) launch(evt *event.Event, start func(context.Context, orchestrator.StartOptions) (*workflow.Run, error)) {
	opts := orchestrator.StartOptions{
		Depth:  evt.Depth,
		Source: "event:" + evt.ID.String(),
		Seed:   seedFrom(evt),
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.trackRun(evt.ID.String(), cancel)
	defer func() {
		r.untrackRun(evt.ID.String())
		cancel()
	}()

	run, err := start(ctx, opts)
	if err != nil {
		r.logger.Error("trigger run failed to start",
			slog.String("event_id", evt.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	r.logger.Info("trigger run finished",
		slog.String("event_id", evt.ID.String()),
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", run.Workflow),
		slog.String("status", string(run.Status)),
	)
}

// pruneLoop periodically deletes acked events past the prune age.
func (r *Reactor) pruneLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			n, err := r.events.Prune(context.Background(), r.pruneAge)
			if err != nil {
				r.logger.Error("prune events", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				r.logger.Debug("pruned acked events", slog.Int("count", n))
			}
		}
	}
}

// adHocDefinition wraps the fired workers in a single parallel phase.
// The definition is pre-normalized: its one phase declares no
// dependencies.
func adHocDefinition(evt *event.Event, fired []Match) *workflow.Definition {
	refs := make([]workflow.WorkerRef, len(fired))
	for i, m := range fired {
		refs[i] = workflow.WorkerRef{ID: m.WorkerID}
	}
	return &workflow.Definition{
		Name:        "trigger:" + string(evt.Kind),
		Description: fmt.Sprintf("auto-triggered by %s event %s", evt.Kind, evt.ID),
		Phases: []workflow.Phase{{
			Name:      "react",
			Workers:   refs,
			Parallel:  true,
			DependsOn: []string{},
		}},
	}
}

// seedFrom maps the event payload onto seed fields so triggered workers
// can declare them as contract inputs.
func seedFrom(evt *event.Event) map[string]any {
	seed := make(map[string]any)
	switch evt.Kind {
	case event.KindFileChanged:
		var p event.FileChangedPayload
		if evt.Decode(&p) == nil {
			seed["path"] = p.Path
			if p.Op != "" {
				seed["op"] = p.Op
			}
		}
	case event.KindErrorObserved:
		var p event.ErrorObservedPayload
		if evt.Decode(&p) == nil {
			seed["message"] = p.Message
			if p.Origin != "" {
				seed["origin"] = p.Origin
			}
		}
	case event.KindExplicitCommand:
		var p event.ExplicitCommandPayload
		if evt.Decode(&p) == nil {
			for k, v := range p.Args {
				seed[k] = v
			}
			if p.Text != "" {
				seed["argument"] = p.Text
			}
		}
	case event.KindWorkerCompleted:
		var p event.WorkerCompletedPayload
		if evt.Decode(&p) == nil {
			seed["run_id"] = p.RunID
			seed["workflow"] = p.Workflow
			seed["phase"] = p.Phase
			seed["worker"] = p.Worker
			seed["status"] = p.Status
		}
	}
	if len(seed) == 0 {
		return nil
	}
	return seed
}

func (r *Reactor) sleep() {
	select {
	case <-time.After(r.pollInterval):
	case <-r.stopCh:
	}
}

func (r *Reactor) trackRun(eventID string, cancel context.CancelFunc) {
	r.activeMu.Lock()
	r.activeRuns[eventID] = cancel
	r.activeMu.Unlock()
}

func (r *Reactor) untrackRun(eventID string) {
	r.activeMu.Lock()
	delete(r.activeRuns, eventID)
	r.activeMu.Unlock()
}

func (r *Reactor) cancelActiveRuns() {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	for eventID, cancel := range r.activeRuns {
		r.logger.Warn("cancelling triggered run", slog.String("event_id", eventID))
		cancel()
	}
}
