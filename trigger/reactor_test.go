package trigger_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/orchestrator"
	"github.com/xraph/foreman/store/memory"
	"github.com/xraph/foreman/trigger"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startCall records one launch observed by the fake starter.
type startCall struct {
	workflow string
	def      *workflow.Definition
	opts     orchestrator.StartOptions
}

// fakeStarter records launches instead of executing runs.
type fakeStarter struct {
	calls chan startCall
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{calls: make(chan startCall, 16)}
}

func (f *fakeStarter) Start(_ context.Context, name string, opts orchestrator.StartOptions) (*workflow.Run, error) {
	f.calls <- startCall{workflow: name, opts: opts}
	def := &workflow.Definition{
		Name:   name,
		Phases: []workflow.Phase{{Name: "react", Workers: []workflow.WorkerRef{{ID: "w"}}}},
	}
	return workflow.NewRun(def, time.Now().UTC()), nil
}

func (f *fakeStarter) StartDefinition(_ context.Context, def *workflow.Definition, opts orchestrator.StartOptions) (*workflow.Run, error) {
	f.calls <- startCall{workflow: def.Name, def: def, opts: opts}
	return workflow.NewRun(def, time.Now().UTC()), nil
}

func (f *fakeStarter) wait(t *testing.T) startCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a run launch")
		return startCall{}
	}
}

func (f *fakeStarter) expectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected run launch: %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

// startReactor builds a reactor over a fresh memory store and starts it.
func startReactor(t *testing.T, starter trigger.Starter, workers *worker.Registry, opts ...trigger.ReactorOption) (*event.Bus, *memory.Store) {
	t.Helper()

	store := memory.New()
	events := event.NewBus(store)
	base := []trigger.ReactorOption{
		trigger.WithConcurrency(1),
		trigger.WithPollInterval(5 * time.Millisecond),
		trigger.WithLogger(discardLogger()),
	}
	r := trigger.NewReactor(events, trigger.NewEvaluator(workers), starter, append(base, opts...)...)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return events, store
}

func waitAcked(t *testing.T, store *memory.Store, eventID id.EventID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		evt, err := store.GetEvent(context.Background(), eventID)
		if err == nil && evt.Acked {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("event was never acked")
}

func TestReactor_MatchedEventLaunchesAdHocRun(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	workers := registry(t, &worker.Descriptor{
		ID:       "code-reviewer",
		Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindFileChanged}, PathGlob: "**/*.go"}},
	})
	events, store := startReactor(t, starter, workers)

	evt := event.NewFileChanged("internal/auth/login.go", "write", "watch")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	call := starter.wait(t)
	if call.def == nil {
		t.Fatal("expected an ad-hoc definition launch")
	}
	if call.def.Name != "trigger:file_changed" {
		t.Fatalf("definition name = %q", call.def.Name)
	}
	if len(call.def.Phases) != 1 || call.def.Phases[0].Name != "react" || !call.def.Phases[0].Parallel {
		t.Fatalf("unexpected phase shape: %+v", call.def.Phases)
	}
	if len(call.def.Phases[0].Workers) != 1 || call.def.Phases[0].Workers[0].ID != "code-reviewer" {
		t.Fatalf("unexpected refs: %+v", call.def.Phases[0].Workers)
	}
	if !strings.HasPrefix(call.opts.Source, "event:") {
		t.Fatalf("source = %q, want event id prefix", call.opts.Source)
	}
	if call.opts.Seed["path"] != "internal/auth/login.go" {
		t.Fatalf("seed = %+v, want changed path", call.opts.Seed)
	}
	if call.opts.Depth != 0 {
		t.Fatalf("depth = %d, want 0", call.opts.Depth)
	}

	waitAcked(t, store, evt.ID)
}

func TestReactor_FanOutFormsSingleRun(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	workers := registry(t,
		&worker.Descriptor{
			ID:       "code-reviewer",
			Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindErrorObserved}}},
		},
		&worker.Descriptor{
			ID:       "refactoring-expert",
			Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindErrorObserved}}},
		},
	)
	events, _ := startReactor(t, starter, workers)

	evt := event.NewErrorObserved("function too long", "lint", "ci")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	call := starter.wait(t)
	refs := call.def.Phases[0].Workers
	if len(refs) != 2 || refs[0].ID != "code-reviewer" || refs[1].ID != "refactoring-expert" {
		t.Fatalf("refs = %+v, want both matched workers in order", refs)
	}
	starter.expectNone(t)
}

func TestReactor_DepthExhaustedEventDropped(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	workers := registry(t, &worker.Descriptor{
		ID:       "chain-reactor",
		Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindWorkerCompleted}}},
	})
	events, store := startReactor(t, starter, workers, trigger.WithMaxTriggerDepth(3))

	evt := event.NewWorkerCompleted(event.WorkerCompletedPayload{
		RunID: "run_1", Workflow: "review", Phase: "scan", Worker: "scanner", Status: "success",
	}, 4)
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitAcked(t, store, evt.ID)
	starter.expectNone(t)
}

func TestReactor_CascadeDepthPropagates(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	workers := registry(t, &worker.Descriptor{
		ID:       "chain-reactor",
		Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindWorkerCompleted}}},
	})
	events, _ := startReactor(t, starter, workers, trigger.WithMaxTriggerDepth(3))

	evt := event.NewWorkerCompleted(event.WorkerCompletedPayload{
		RunID: "run_1", Workflow: "review", Phase: "scan", Worker: "scanner", Status: "success",
	}, 2)
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	call := starter.wait(t)
	if call.opts.Depth != 2 {
		t.Fatalf("depth = %d, want event depth carried through", call.opts.Depth)
	}
	if call.opts.Seed["worker"] != "scanner" || call.opts.Seed["status"] != "success" {
		t.Fatalf("seed = %+v, want completion fields", call.opts.Seed)
	}
}

func TestReactor_ExplicitWorkflowCommand(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	events, _ := startReactor(t, starter, registry(t))

	evt := event.NewExplicitCommand(event.ExplicitCommandPayload{Workflow: "ship", Text: "v2.1"}, "cli")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	call := starter.wait(t)
	if call.def != nil {
		t.Fatal("workflow command should start a registered workflow, not an ad-hoc definition")
	}
	if call.workflow != "ship" {
		t.Fatalf("workflow = %q, want ship", call.workflow)
	}
	if call.opts.Seed["argument"] != "v2.1" {
		t.Fatalf("seed = %+v, want command text as argument", call.opts.Seed)
	}
}

func TestReactor_ExplicitWorkerCommand(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	workers := registry(t, &worker.Descriptor{ID: "deploy-runner"})
	events, _ := startReactor(t, starter, workers)

	evt := event.NewExplicitCommand(event.ExplicitCommandPayload{
		Worker: "deploy-runner",
		Args:   map[string]any{"env": "staging"},
	}, "cli")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	call := starter.wait(t)
	if call.def == nil || call.def.Name != "trigger:explicit_command" {
		t.Fatalf("call = %+v, want ad-hoc command definition", call)
	}
	refs := call.def.Phases[0].Workers
	if len(refs) != 1 || refs[0].ID != "deploy-runner" {
		t.Fatalf("refs = %+v, want the named worker", refs)
	}
	if call.opts.Seed["env"] != "staging" {
		t.Fatalf("seed = %+v, want command args", call.opts.Seed)
	}
}

func TestReactor_UnknownWorkerCommandAcked(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	events, store := startReactor(t, starter, registry(t))

	evt := event.NewExplicitCommand(event.ExplicitCommandPayload{Worker: "ghost"}, "cli")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitAcked(t, store, evt.ID)
	starter.expectNone(t)
}

func TestReactor_ConfirmSkippedWithoutApprover(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	workers := registry(t, &worker.Descriptor{
		ID:       "db-migrator",
		Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindFileChanged}, Confirm: true}},
	})
	events, store := startReactor(t, starter, workers)

	evt := event.NewFileChanged("migrations/0042_users.sql", "create", "watch")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitAcked(t, store, evt.ID)
	starter.expectNone(t)
}

func TestReactor_ConfirmApprovedFires(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	workers := registry(t, &worker.Descriptor{
		ID:       "db-migrator",
		Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindFileChanged}, Confirm: true}},
	})
	events, _ := startReactor(t, starter, workers,
		trigger.WithApprover(orchestrator.AutoApprove()))

	evt := event.NewFileChanged("migrations/0042_users.sql", "create", "watch")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	call := starter.wait(t)
	refs := call.def.Phases[0].Workers
	if len(refs) != 1 || refs[0].ID != "db-migrator" {
		t.Fatalf("refs = %+v, want the confirmed worker", refs)
	}
}

func TestReactor_ConfirmDeniedFiltersMatch(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	deny := orchestrator.ApproverFunc(func(context.Context, orchestrator.ApprovalRequest) (bool, error) {
		return false, nil
	})
	workers := registry(t,
		&worker.Descriptor{
			ID:       "logger",
			Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindFileChanged}}},
		},
		&worker.Descriptor{
			ID:       "db-migrator",
			Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindFileChanged}, Confirm: true}},
		},
	)
	events, _ := startReactor(t, starter, workers, trigger.WithApprover(deny))

	evt := event.NewFileChanged("migrations/0042_users.sql", "create", "watch")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	call := starter.wait(t)
	refs := call.def.Phases[0].Workers
	if len(refs) != 1 || refs[0].ID != "logger" {
		t.Fatalf("refs = %+v, want only the unconfirmed worker", refs)
	}
}

func TestReactor_PruneRemovesAckedEvents(t *testing.T) {
	t.Parallel()
	starter := newFakeStarter()
	events, store := startReactor(t, starter, registry(t),
		trigger.WithPruneInterval(10*time.Millisecond),
		trigger.WithPruneAge(time.Nanosecond),
	)

	evt := event.NewFileChanged("main.go", "write", "watch")
	if err := events.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitAcked(t, store, evt.ID)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.GetEvent(context.Background(), evt.ID); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("acked event was never pruned")
}

// blockingStarter holds its run open until the context is cancelled.
type blockingStarter struct {
	entered  chan struct{}
	released chan error
}

func (b *blockingStarter) Start(ctx context.Context, name string, _ orchestrator.StartOptions) (*workflow.Run, error) {
	def := &workflow.Definition{Name: name}
	return b.StartDefinition(ctx, def, orchestrator.StartOptions{})
}

func (b *blockingStarter) StartDefinition(ctx context.Context, def *workflow.Definition, _ orchestrator.StartOptions) (*workflow.Run, error) {
	close(b.entered)
	<-ctx.Done()
	b.released <- ctx.Err()
	return workflow.NewRun(def, time.Now().UTC()), nil
}

func TestReactor_StopCancelsActiveRuns(t *testing.T) {
	t.Parallel()
	starter := &blockingStarter{
		entered:  make(chan struct{}),
		released: make(chan error, 1),
	}
	workers := registry(t, &worker.Descriptor{
		ID:       "slow-worker",
		Triggers: []worker.TriggerPredicate{{Kinds: []event.Kind{event.KindFileChanged}}},
	})

	store := memory.New()
	events := event.NewBus(store)
	r := trigger.NewReactor(events, trigger.NewEvaluator(workers), starter,
		trigger.WithConcurrency(1),
		trigger.WithPollInterval(5*time.Millisecond),
		trigger.WithLogger(discardLogger()),
	)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := events.Publish(context.Background(), event.NewFileChanged("main.go", "write", "watch")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-starter.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-starter.released:
		if err != context.Canceled {
			t.Fatalf("run context ended with %v, want cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked run was never cancelled")
	}
}

func TestReactor_StopIdempotent(t *testing.T) {
	t.Parallel()
	r := trigger.NewReactor(event.NewBus(memory.New()), trigger.NewEvaluator(registry(t)), newFakeStarter(),
		trigger.WithLogger(discardLogger()),
	)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
