package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/foreman/bus"
	"github.com/xraph/foreman/dlq"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/ext"
	"github.com/xraph/foreman/limit"
	"github.com/xraph/foreman/middleware"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// Orchestrator drives workflow runs: it resolves ready phases, dispatches
// workers through the middleware chain, evaluates validation loops, and
// derives the terminal run status from the phase cursors.
//
// One orchestrator serves many concurrent runs; each Start call executes
// its run synchronously on the calling goroutine. Intra-run concurrency
// is confined to parallel phases.
type Orchestrator struct {
	workers *worker.Registry
	defs    *workflow.Registry

	runs    workflow.Store
	records worker.Store
	entries bus.Store

	events      *event.Bus
	extensions  *ext.Registry
	deadLetters *dlq.Service
	limits      *limit.Manager
	approver    Approver

	mws []middleware.Middleware

	workerTimeout        time.Duration
	defaultMaxIterations int
	maxTriggerDepth      int
	laneRetryInterval    time.Duration

	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMiddleware sets the middleware chain applied to every invocation.
// The first middleware is the outermost wrapper.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *Orchestrator) { o.mws = mws }
}

// WithExtensions sets the extension registry receiving lifecycle hooks.
func WithExtensions(reg *ext.Registry) Option {
	return func(o *Orchestrator) { o.extensions = reg }
}

// WithEvents sets the event bus on which WorkerCompleted events are
// published for trigger cascades. Without it no cascade events are
// emitted.
func WithEvents(events *event.Bus) Option {
	return func(o *Orchestrator) { o.events = events }
}

// WithDeadLetters sets the DLQ service receiving terminally failed
// non-advisory invocations.
func WithDeadLetters(svc *dlq.Service) Option {
	return func(o *Orchestrator) { o.deadLetters = svc }
}

// WithLimits sets the concurrency limit manager consulted per capability
// lane before each dispatch.
func WithLimits(m *limit.Manager) Option {
	return func(o *Orchestrator) { o.limits = m }
}

// WithApprover sets the approver consulted at interactive gates.
func WithApprover(a Approver) Option {
	return func(o *Orchestrator) { o.approver = a }
}

// WithWorkerTimeout sets the default per-invocation deadline for workers
// whose descriptor declares none. Zero disables the default deadline.
func WithWorkerTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.workerTimeout = d }
}

// WithDefaultMaxIterations sets the loop iteration cap applied when a
// loop declares none.
func WithDefaultMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.defaultMaxIterations = n
		}
	}
}

// WithMaxTriggerDepth bounds WorkerCompleted cascades: runs at this
// depth emit no further trigger fan-out.
func WithMaxTriggerDepth(n int) Option {
	return func(o *Orchestrator) { o.maxTriggerDepth = n }
}

// New creates an orchestrator over the given registries and stores.
func New(
	workers *worker.Registry,
	defs *workflow.Registry,
	runs workflow.Store,
	records worker.Store,
	entries bus.Store,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		workers:              workers,
		defs:                 defs,
		runs:                 runs,
		records:              records,
		entries:              entries,
		defaultMaxIterations: 3,
		maxTriggerDepth:      3,
		laneRetryInterval:    25 * time.Millisecond,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.extensions == nil {
		o.extensions = ext.NewRegistry(o.logger)
	}
	return o
}

// Registry returns the worker registry.
func (o *Orchestrator) Registry() *worker.Registry { return o.workers }

// Definitions returns the workflow registry.
func (o *Orchestrator) Definitions() *workflow.Registry { return o.defs }

// StartOptions carries the per-run knobs of a Start call.
type StartOptions struct {
	// Focus restricts dispatch to workers matching these tags by ID or
	// capability. Phases left empty by the filter are skipped.
	Focus []string

	// Interactive inserts an approval gate after each phase before the
	// run advances. A denied gate fails the run.
	Interactive bool

	// MaxIterations overrides every loop's iteration cap when > 0.
	MaxIterations int

	// Depth is the trigger-cascade depth this run starts at. Zero for
	// runs started directly.
	Depth int

	// Source describes what started the run ("cli", "event:evt_...",
	// "schedule:sched_...", "replay:dl_..."). Defaults to "cli".
	Source string

	// Seed values are written onto the context bus before the first
	// phase, keyed under the reserved phase "input", so workers can
	// declare them as contract inputs. The free-form run argument
	// travels here.
	Seed map[string]any
}

// Start looks up the named definition and executes a run of it
// synchronously. The returned run carries a terminal status unless a
// storage failure interrupted execution.
func (o *Orchestrator) Start(ctx context.Context, name string, opts StartOptions) (*workflow.Run, error) {
	def, err := o.defs.Lookup(name)
	if err != nil {
		return nil, err
	}
	return o.StartDefinition(ctx, def, opts)
}

// StartDefinition executes a run of the given definition, which need not
// be registered. The trigger reactor uses it for the ad-hoc single-phase
// definitions it builds from matched events.
func (o *Orchestrator) StartDefinition(ctx context.Context, def *workflow.Definition, opts StartOptions) (*workflow.Run, error) {
	now := time.Now().UTC()
	run := workflow.NewRun(def, now)
	run.Focus = append([]string(nil), opts.Focus...)
	run.Interactive = opts.Interactive
	run.MaxIterations = opts.MaxIterations
	run.Depth = opts.Depth
	run.Source = opts.Source
	if run.Source == "" {
		run.Source = "cli"
	}

	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run for workflow %q: %w", def.Name, err)
	}

	if err := o.execute(ctx, def, run, opts.Seed); err != nil {
		return run, err
	}
	return run, nil
}

// execute walks the ready phases of the run to completion. Worker and
// contract failures are encoded in the run status; only storage failures
// surface as errors.
func (o *Orchestrator) execute(ctx context.Context, def *workflow.Definition, run *workflow.Run, seed map[string]any) error {
	b := bus.New(o.entries, run.ID)

	now := time.Now().UTC()
	run.MarkRunning(now)
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	o.extensions.EmitRunStarted(ctx, run)
	o.logger.Info("run started",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", run.Workflow),
		slog.String("source", run.Source),
	)

	if err := o.seed(ctx, b, run, seed); err != nil {
		run.Error = err.Error()
		o.skipRemaining(run)
		return o.finish(ctx, run, true)
	}

	forcedFail := false
	for {
		if err := ctx.Err(); err != nil {
			run.Error = "run cancelled: " + err.Error()
			forcedFail = true
			o.skipRemaining(run)
			break
		}

		p := o.nextReady(def, run)
		if p == nil {
			break
		}

		abort := o.executePhase(ctx, run, p, b)
		if err := o.runs.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("update run %s: %w", run.ID, err)
		}
		if abort {
			o.skipRemaining(run)
			break
		}

		if run.Interactive && o.hasPending(run) {
			approved, err := o.approveGate(ctx, run, p.Name)
			if err != nil || !approved {
				if err != nil {
					run.Error = fmt.Sprintf("approval after phase %q: %v", p.Name, err)
				} else {
					run.Error = fmt.Sprintf("approval denied after phase %q", p.Name)
				}
				forcedFail = true
				o.skipRemaining(run)
				break
			}
		}
	}

	return o.finish(ctx, run, forcedFail)
}

// finish derives the terminal status, persists it, and emits the closing
// lifecycle hook.
func (o *Orchestrator) finish(ctx context.Context, run *workflow.Run, forcedFail bool) error {
	now := time.Now().UTC()
	status := run.Derive()
	if forcedFail {
		status = workflow.StatusFailed
	}
	run.MarkCompleted(status, now)
	if err := o.runs.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}

	elapsed := run.Elapsed(now)
	if status == workflow.StatusFailed {
		reason := run.Error
		if reason == "" {
			reason = "run failed"
		}
		o.extensions.EmitRunFailed(ctx, run, errors.New(reason))
	} else {
		o.extensions.EmitRunCompleted(ctx, run, elapsed)
	}
	o.logger.Info("run finished",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", run.Workflow),
		slog.String("status", string(status)),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

// seed writes the start-time values onto the context bus under the
// reserved phase "input", iteration 0, keyed by the run source. Workers
// consume them like any other context field.
func (o *Orchestrator) seed(ctx context.Context, b *bus.Bus, run *workflow.Run, seed map[string]any) error {
	if len(seed) == 0 {
		return nil
	}
	fields := make([]string, 0, len(seed))
	for name := range seed {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for _, name := range fields {
		key := bus.Key{Phase: "input", Iteration: 0, Worker: run.Source, Field: name}
		if err := b.Write(ctx, key, seed[name]); err != nil {
			return err
		}
	}
	return nil
}

// nextReady returns the first pending phase, in declaration order, whose
// dependencies have all reached a terminal status. Nil when no phase is
// ready; with an acyclic definition and abort-on-failure this means the
// run is done.
func (o *Orchestrator) nextReady(def *workflow.Definition, run *workflow.Run) *workflow.Phase {
	for i := range def.Phases {
		p := &def.Phases[i]
		cursor := run.Phase(p.Name)
		if cursor == nil || cursor.Status != workflow.PhasePending {
			continue
		}
		ready := true
		for _, dep := range p.DependsOn {
			dc := run.Phase(dep)
			if dc == nil || !dc.Status.Terminal() {
				ready = false
				break
			}
		}
		if ready {
			return p
		}
	}
	return nil
}

// hasPending reports whether any phase has not reached a terminal
// status yet.
func (o *Orchestrator) hasPending(run *workflow.Run) bool {
	for _, c := range run.Phases {
		if !c.Status.Terminal() {
			return true
		}
	}
	return false
}

// skipRemaining marks every non-terminal phase cursor skipped. Called
// when an abort makes the rest of the graph unreachable.
func (o *Orchestrator) skipRemaining(run *workflow.Run) {
	for _, c := range run.Phases {
		if !c.Status.Terminal() {
			c.Status = workflow.PhaseSkipped
		}
	}
}

// approveGate consults the approver between phases. A nil approver
// passes the gate with a warning so non-interactive embeddings do not
// deadlock.
func (o *Orchestrator) approveGate(ctx context.Context, run *workflow.Run, phase string) (bool, error) {
	if o.approver == nil {
		o.logger.Warn("interactive run without approver, gate passed",
			slog.String("run_id", run.ID.String()),
			slog.String("phase", phase),
		)
		return true, nil
	}
	return o.approver.Approve(ctx, ApprovalRequest{
		Run:   run,
		Phase: phase,
	})
}
