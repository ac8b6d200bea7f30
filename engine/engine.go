package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/audit"
	"github.com/xraph/foreman/bus"
	"github.com/xraph/foreman/cluster"
	"github.com/xraph/foreman/cron"
	"github.com/xraph/foreman/dlq"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/ext"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/limit"
	mw "github.com/xraph/foreman/middleware"
	"github.com/xraph/foreman/observability"
	"github.com/xraph/foreman/orchestrator"
	"github.com/xraph/foreman/report"
	"github.com/xraph/foreman/stream"
	"github.com/xraph/foreman/trigger"
	"github.com/xraph/foreman/watch"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Engine wraps a Foreman coordinator with fully wired subsystems.
// Use Build() to create one.
type Engine struct {
	f          *foreman.Foreman
	extensions *ext.Registry
	workers    *worker.Registry
	defs       *workflow.Registry
	orch       *orchestrator.Orchestrator
	events     *event.Bus
	reactor    *trigger.Reactor
	scheduler  *cron.Scheduler
	dlqService *dlq.Service
	broker     *stream.Broker
	watcher    *watch.Watcher
	limits     *limit.Manager
	logger     *slog.Logger

	// Typed views of the coordinator's store.
	runStore     workflow.Store
	recordStore  worker.Store
	busStore     bus.Store
	eventStore   event.Store
	cronStore    cron.Store
	clusterStore cluster.Store

	instanceID id.InstanceID

	// Collected by options, consumed during Build.
	mws           []mw.Middleware
	approver      orchestrator.Approver
	limitConfigs  []limit.Config
	watchRoots    []string
	watchOpts     []watch.Option
	auditRecorder audit.Recorder
	auditOpts     []audit.Option

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	heartbeatStop chan struct{}
	heartbeatWG   sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's invocation chain,
// after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithApprover sets the approval gate consulted between phases of
// interactive runs and for trigger predicates with Confirm set. Without
// one, interactive gates pass with a warning and confirm matches are
// skipped.
func WithApprover(a orchestrator.Approver) Option {
	return func(eng *Engine) {
		eng.approver = a
	}
}

// WithLimits registers per-capability concurrency lanes and rate
// limits. Capabilities not listed are unconstrained.
func WithLimits(configs ...limit.Config) Option {
	return func(eng *Engine) {
		eng.limitConfigs = append(eng.limitConfigs, configs...)
	}
}

// WithWatch enables the filesystem watcher over the given roots.
// FileChanged events publish to the bus and flow through trigger
// evaluation like any other observed event.
func WithWatch(roots []string, opts ...watch.Option) Option {
	return func(eng *Engine) {
		eng.watchRoots = append(eng.watchRoots, roots...)
		eng.watchOpts = append(eng.watchOpts, opts...)
	}
}

// WithAuditRecorder enables the audit trail extension, writing one
// record per lifecycle action to the given recorder.
func WithAuditRecorder(r audit.Recorder, opts ...audit.Option) Option {
	return func(eng *Engine) {
		eng.auditRecorder = r
		eng.auditOpts = append(eng.auditOpts, opts...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from a Foreman coordinator. The
// coordinator's store must implement every subsystem store interface;
// store.Store backends (memory, redis) do.
func Build(f *foreman.Foreman, opts ...Option) (*Engine, error) {
	logger := f.Logger()
	store := f.Store()

	if store == nil {
		return nil, foreman.ErrNoStore
	}

	ws, ok := store.(workflow.Store)
	if !ok {
		return nil, fmt.Errorf("foreman: store does not implement workflow.Store")
	}

	is, ok := store.(worker.Store)
	if !ok {
		return nil, fmt.Errorf("foreman: store does not implement worker.Store")
	}

	bs, ok := store.(bus.Store)
	if !ok {
		return nil, fmt.Errorf("foreman: store does not implement bus.Store")
	}

	es, ok := store.(event.Store)
	if !ok {
		return nil, fmt.Errorf("foreman: store does not implement event.Store")
	}

	cs, ok := store.(cron.Store)
	if !ok {
		return nil, fmt.Errorf("foreman: store does not implement cron.Store")
	}

	ds, ok := store.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("foreman: store does not implement dlq.Store")
	}

	cls, ok := store.(cluster.Store)
	if !ok {
		return nil, fmt.Errorf("foreman: store does not implement cluster.Store")
	}

	eng := &Engine{
		f:             f,
		extensions:    ext.NewRegistry(logger),
		workers:       worker.NewRegistry(),
		defs:          workflow.NewRegistry(),
		logger:        logger,
		runStore:      ws,
		recordStore:   is,
		busStore:      bs,
		eventStore:    es,
		cronStore:     cs,
		clusterStore:  cls,
		instanceID:    id.NewInstanceID(),
		heartbeatStop: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(eng)
	}

	config := f.Config()

	// Event bus and dead-letter service.
	eng.events = event.NewBus(es)
	eng.dlqService = dlq.NewService(ds, es)

	// Capability lanes.
	if len(eng.limitConfigs) > 0 {
		eng.limits = limit.NewManager(eng.limitConfigs...)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/xraph/foreman")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/foreman")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the run-level observability extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/foreman/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Register the live event stream broker.
	eng.broker = stream.NewBroker(logger)
	eng.extensions.Register(eng.broker)

	// Register the audit trail when a recorder is configured.
	if eng.auditRecorder != nil {
		eng.extensions.Register(audit.New(eng.auditRecorder, eng.auditOpts...))
	}

	// Build default middleware stack: recover → tracing → metrics → logging → scope → timeout.
	defaultMws := []mw.Middleware{
		mw.RecoverWithLogger(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Scope(),
		mw.TimeoutWithLogger(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create the orchestrator.
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMiddleware(allMws...),
		orchestrator.WithExtensions(eng.extensions),
		orchestrator.WithEvents(eng.events),
		orchestrator.WithDeadLetters(eng.dlqService),
		orchestrator.WithWorkerTimeout(config.WorkerTimeout),
		orchestrator.WithDefaultMaxIterations(config.DefaultMaxIterations),
		orchestrator.WithMaxTriggerDepth(config.MaxTriggerDepth),
	}
	if eng.limits != nil {
		orchOpts = append(orchOpts, orchestrator.WithLimits(eng.limits))
	}
	if eng.approver != nil {
		orchOpts = append(orchOpts, orchestrator.WithApprover(eng.approver))
	}
	eng.orch = orchestrator.New(eng.workers, eng.defs, ws, is, bs, orchOpts...)

	// Create the trigger reactor.
	evaluator := trigger.NewEvaluator(eng.workers)
	reactorOpts := []trigger.ReactorOption{
		trigger.WithConcurrency(config.Concurrency),
		trigger.WithPollInterval(config.PollInterval),
		trigger.WithMaxTriggerDepth(config.MaxTriggerDepth),
		trigger.WithExtensions(eng.extensions),
		trigger.WithLogger(logger),
	}
	if eng.approver != nil {
		reactorOpts = append(reactorOpts, trigger.WithApprover(eng.approver))
	}
	eng.reactor = trigger.NewReactor(eng.events, evaluator, eng.orch, reactorOpts...)

	// Create the schedule scheduler.
	eng.scheduler = cron.NewScheduler(cs, cls, es, eng.extensions, eng.instanceID, logger)

	// Create the filesystem watcher when roots are configured.
	if len(eng.watchRoots) > 0 {
		watchOpts := append([]watch.Option{watch.WithLogger(logger)}, eng.watchOpts...)
		w, err := watch.New(eng.events, eng.watchRoots, watchOpts...)
		if err != nil {
			return nil, fmt.Errorf("foreman: create watcher: %w", err)
		}
		eng.watcher = w
	}

	// Wire back into the coordinator.
	f.SetReactor(eng.reactor)
	f.SetExtensions(eng.extensions)

	// Register this instance in the cluster store.
	hostname, hostnameErr := os.Hostname()
	if hostnameErr != nil {
		hostname = "unknown"
	}
	now := time.Now().UTC()
	inst := &cluster.Instance{
		ID:          eng.instanceID,
		Hostname:    hostname,
		Concurrency: config.Concurrency,
		State:       cluster.InstanceActive,
		LastSeen:    now,
		CreatedAt:   now,
	}
	if regErr := cls.RegisterInstance(context.Background(), inst); regErr != nil {
		logger.Warn("failed to register instance in cluster store", slog.String("error", regErr.Error()))
	}

	return eng, nil
}

// RegisterWorker registers a capability worker with the engine. The
// descriptor is validated; registering a duplicate ID is an error.
func (eng *Engine) RegisterWorker(desc *worker.Descriptor, invoker worker.Invoker) error {
	return eng.workers.Register(desc, invoker)
}

// RegisterWorkflow normalizes and registers a workflow definition.
// Definitions decoded from YAML arrive already normalized; programmatic
// definitions get the same implied-dependency fill here.
func (eng *Engine) RegisterWorkflow(def *workflow.Definition) error {
	def.Normalize(eng.f.Config().DefaultMaxIterations)
	return eng.defs.Register(def)
}

// RegisterSchedule registers a typed schedule definition with the
// engine. It validates the schedule expression, computes the initial
// NextRunAt, and persists the entry. Re-registration of the same name
// is idempotent.
func RegisterSchedule[T any](ctx context.Context, eng *Engine, def *cron.Definition[T]) error {
	if (def.Target.Worker() == "") == (def.Target.Workflow() == "") {
		return fmt.Errorf("schedule %q: target must name exactly one worker or workflow", def.Name)
	}

	sched, err := cron.ParseSchedule(def.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", def.Schedule, err)
	}

	payload, err := json.Marshal(def.Args)
	if err != nil {
		return fmt.Errorf("marshal schedule args: %w", err)
	}

	now := time.Now().UTC()
	next := sched.Next(now)

	entry := &cron.Entry{
		Entity:    foreman.NewEntity(),
		ID:        id.NewScheduleID(),
		Name:      def.Name,
		Schedule:  def.Schedule,
		Worker:    def.Target.Worker(),
		Workflow:  def.Target.Workflow(),
		Payload:   payload,
		NextRunAt: &next,
		Enabled:   true,
	}

	if err := eng.cronStore.RegisterSchedule(ctx, entry); err != nil {
		// Idempotent: ignore duplicate schedule entries.
		if errors.Is(err, foreman.ErrDuplicateSchedule) {
			return nil
		}
		return fmt.Errorf("register schedule %q: %w", def.Name, err)
	}

	eng.logger.Info("schedule registered",
		slog.String("name", def.Name),
		slog.String("schedule", def.Schedule),
		slog.Time("next_run_at", next),
	)

	return nil
}

// StartRun executes a run of a registered workflow and blocks until it
// reaches a terminal status.
func (eng *Engine) StartRun(ctx context.Context, name string, opts orchestrator.StartOptions) (*workflow.Run, error) {
	return eng.orch.Start(ctx, name, opts)
}

// StartDefinition executes a run of an unregistered definition, for
// one-off runs assembled on the fly. The definition is normalized and
// validated first.
func (eng *Engine) StartDefinition(ctx context.Context, def *workflow.Definition, opts orchestrator.StartOptions) (*workflow.Run, error) {
	def.Normalize(eng.f.Config().DefaultMaxIterations)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return eng.orch.StartDefinition(ctx, def, opts)
}

// Publish appends an event to the bus. The reactor evaluates triggers
// against it on its next claim.
func (eng *Engine) Publish(ctx context.Context, evt *event.Event) error {
	return eng.events.Publish(ctx, evt)
}

// TriggerCommand publishes an explicit command event naming a worker or
// workflow. Explicit commands bypass predicate evaluation and dispatch
// their target directly.
func (eng *Engine) TriggerCommand(ctx context.Context, payload event.ExplicitCommandPayload, source string) (*event.Event, error) {
	evt := event.NewExplicitCommand(payload, source)
	if err := eng.events.Publish(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// Report aggregates the final result of a terminal run from its
// invocation records.
func (eng *Engine) Report(ctx context.Context, runID id.RunID) (*report.FinalResult, error) {
	run, err := eng.runStore.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	records, err := eng.recordStore.ListInvocations(ctx, runID, worker.ListOpts{})
	if err != nil {
		return nil, err
	}
	return report.Aggregate(run, records)
}

// Replay republishes a dead-lettered dispatch as an explicit command
// and marks the entry replayed.
func (eng *Engine) Replay(ctx context.Context, entryID id.DeadLetterID) (*event.Event, error) {
	return eng.dlqService.Replay(ctx, entryID)
}

// Start begins trigger-driven execution: the instance heartbeat, the
// schedule scheduler, the filesystem watcher (when configured), and the
// event reactor.
func (eng *Engine) Start(ctx context.Context) error {
	// Refresh the instance record now that workers are registered, so
	// listings show the full capability set.
	eng.refreshInstance(ctx)

	eng.heartbeatWG.Add(1)
	go eng.heartbeatLoop()

	// Start the scheduler before the reactor so leadership is settled
	// by the time scheduled events begin to flow.
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start schedule scheduler: %w", err)
	}

	if eng.watcher != nil {
		if err := eng.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start filesystem watcher: %w", err)
		}
	}

	return eng.f.Start(ctx)
}

// Stop gracefully shuts down the engine: producers first (watcher,
// scheduler, heartbeat), then the reactor and store via the
// coordinator.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.watcher != nil {
		if err := eng.watcher.Stop(); err != nil {
			eng.logger.Warn("watcher stop error", slog.String("error", err.Error()))
		}
	}

	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("schedule scheduler stop error", slog.String("error", err.Error()))
	}

	close(eng.heartbeatStop)
	eng.heartbeatWG.Wait()

	if err := eng.clusterStore.DeregisterInstance(ctx, eng.instanceID); err != nil {
		eng.logger.Warn("failed to deregister instance", slog.String("error", err.Error()))
	}

	return eng.f.Stop(ctx)
}

// refreshInstance re-registers this instance with the capability tags
// of every registered worker.
func (eng *Engine) refreshInstance(ctx context.Context) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	seen := make(map[string]struct{})
	var caps []string
	for _, desc := range eng.workers.List() {
		for _, c := range desc.Capabilities {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			caps = append(caps, c)
		}
	}

	config := eng.f.Config()
	now := time.Now().UTC()
	inst := &cluster.Instance{
		ID:           eng.instanceID,
		Hostname:     hostname,
		Capabilities: caps,
		Concurrency:  config.Concurrency,
		State:        cluster.InstanceActive,
		LastSeen:     now,
		CreatedAt:    now,
	}
	if err := eng.clusterStore.RegisterInstance(ctx, inst); err != nil {
		eng.logger.Warn("failed to refresh instance record", slog.String("error", err.Error()))
	}
}

// heartbeatLoop keeps the instance record fresh until Stop.
func (eng *Engine) heartbeatLoop() {
	defer eng.heartbeatWG.Done()

	interval := eng.f.Config().HeartbeatInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-eng.heartbeatStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if err := eng.clusterStore.HeartbeatInstance(ctx, eng.instanceID); err != nil {
				eng.logger.Warn("instance heartbeat failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Workers returns the worker registry.
func (eng *Engine) Workers() *worker.Registry { return eng.workers }

// Definitions returns the workflow registry.
func (eng *Engine) Definitions() *workflow.Registry { return eng.defs }

// Orchestrator returns the run orchestrator.
func (eng *Engine) Orchestrator() *orchestrator.Orchestrator { return eng.orch }

// Foreman returns the underlying coordinator.
func (eng *Engine) Foreman() *foreman.Foreman { return eng.f }

// EventBus returns the event bus.
func (eng *Engine) EventBus() *event.Bus { return eng.events }

// Broker returns the live event stream broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// Scheduler returns the schedule scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// ScheduleStore returns the schedule store.
func (eng *Engine) ScheduleStore() cron.Store { return eng.cronStore }

// ClusterStore returns the cluster store.
func (eng *Engine) ClusterStore() cluster.Store { return eng.clusterStore }

// DLQService returns the dead-letter service for replay and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// RunStore returns the run store.
func (eng *Engine) RunStore() workflow.Store { return eng.runStore }

// RecordStore returns the invocation record store.
func (eng *Engine) RecordStore() worker.Store { return eng.recordStore }

// BusStore returns the context bus store.
func (eng *Engine) BusStore() bus.Store { return eng.busStore }

// EventStore returns the event store.
func (eng *Engine) EventStore() event.Store { return eng.eventStore }

// Limits returns the capability lane manager, or nil if no limit
// configs were provided.
func (eng *Engine) Limits() *limit.Manager { return eng.limits }

// InstanceID returns this engine's cluster instance ID.
func (eng *Engine) InstanceID() id.InstanceID { return eng.instanceID }
