package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/foreman"
	"github.com/xraph/foreman/bus"
	"github.com/xraph/foreman/event"
	"github.com/xraph/foreman/id"
	"github.com/xraph/foreman/middleware"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// invoke runs one worker invocation end to end: resolve the input
// contract, snapshot the bus, run the middleware chain around the
// invoker, classify the result, publish produced fields, persist the
// record, and emit lifecycle hooks.
//
// Worker-level failures (errors, timeouts, panics, Failure outcomes) are
// folded into the returned outcome. The error return is reserved for
// contract violations and storage failures, which are fatal to the run.
func (o *Orchestrator) invoke(ctx context.Context, run *workflow.Run, phase string, iteration int, ref resolvedRef, b *bus.Bus) (*worker.Outcome, error) {
	inv := &worker.Invocation{
		Entity:    foreman.NewEntity(),
		ID:        id.NewInvocationID(),
		RunID:     run.ID,
		Workflow:  run.Workflow,
		Phase:     phase,
		Iteration: iteration,
		Worker:    ref.desc.ID,
		Advisory:  ref.advisory,
		Timeout:   ref.desc.Timeout,
	}
	if inv.Timeout <= 0 {
		inv.Timeout = o.workerTimeout
	}

	inputs, err := o.resolveInputs(ctx, b, ref.desc)
	if err != nil {
		// Missing required context is a contract violation: record the
		// invocation as failed and abort the run.
		inv.Status = worker.StatusFailure
		inv.Outcome = worker.Failed(err)
		o.record(ctx, inv)
		o.extensions.EmitWorkerFailed(ctx, inv, err)
		return nil, err
	}
	inv.Inputs = inputs

	snapshot, err := b.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot bus for %s: %w", ref.desc.ID, err)
	}
	inv.Snapshot = snapshot

	if o.limits != nil && ref.lane != "" {
		if err := o.acquireLane(ctx, ref.lane, ref.desc.ID); err != nil {
			return nil, err
		}
		defer o.limits.Release(ref.lane, ref.desc.ID)
	}

	o.extensions.EmitWorkerDispatched(ctx, inv)

	var out *worker.Outcome
	terminal := func(ctx context.Context) error {
		res, invokeErr := ref.invoker.Invoke(ctx, inv)
		if invokeErr != nil {
			return invokeErr
		}
		if res == nil {
			return fmt.Errorf("%w: worker %s returned no outcome", worker.ErrInvocation, ref.desc.ID)
		}
		out = res
		return nil
	}

	startedAt := time.Now().UTC()
	inv.StartedAt = &startedAt
	start := time.Now()
	invErr := middleware.Chain(terminal, o.mws...)(ctx, inv)
	elapsed := time.Since(start)
	completedAt := time.Now().UTC()
	inv.CompletedAt = &completedAt
	inv.Elapsed = elapsed

	if invErr != nil {
		out = classifyError(invErr, ref.desc.ID)
	} else if !out.Status.Terminal() {
		invErr = fmt.Errorf("%w: worker %s returned status %q", worker.ErrInvocation, ref.desc.ID, out.Status)
		out = classifyError(invErr, ref.desc.ID)
	}

	inv.Status = out.Status
	inv.Outcome = out

	if err := o.publishFields(ctx, b, inv, out); err != nil {
		inv.Status = worker.StatusFailure
		o.record(ctx, inv)
		o.extensions.EmitWorkerFailed(ctx, inv, err)
		return nil, err
	}

	o.record(ctx, inv)

	if invErr != nil {
		o.extensions.EmitWorkerFailed(ctx, inv, invErr)
	} else {
		o.extensions.EmitWorkerCompleted(ctx, inv, out, elapsed)
	}

	if out.Status == worker.StatusFailure && !ref.advisory {
		o.deadLetter(ctx, inv, invErr)
	}

	o.publishCompletion(ctx, run, inv, out)
	return out, nil
}

// recordSkipped persists the placeholder record of a worker a sequential
// short-circuit never dispatched, so reports account for every listed
// worker.
func (o *Orchestrator) recordSkipped(ctx context.Context, run *workflow.Run, phase string, iteration int, ref resolvedRef) {
	inv := &worker.Invocation{
		Entity:    foreman.NewEntity(),
		ID:        id.NewInvocationID(),
		RunID:     run.ID,
		Workflow:  run.Workflow,
		Phase:     phase,
		Iteration: iteration,
		Worker:    ref.desc.ID,
		Advisory:  ref.advisory,
		Status:    worker.StatusSkipped,
	}
	o.record(ctx, inv)
}

// record persists the invocation, logging instead of failing: losing one
// record must not take the run down with it.
func (o *Orchestrator) record(ctx context.Context, inv *worker.Invocation) {
	if err := o.records.AppendInvocation(ctx, inv); err != nil {
		o.logger.Error("append invocation record",
			slog.String("invocation_id", inv.ID.String()),
			slog.String("run_id", inv.RunID.String()),
			slog.String("worker", inv.Worker),
			slog.String("error", err.Error()),
		)
	}
}

// resolveInputs reads each declared input field off the bus, most recent
// write wins. A field never written falls back to its declared default;
// with no default the contract is violated and the run must fail.
func (o *Orchestrator) resolveInputs(ctx context.Context, b *bus.Bus, desc *worker.Descriptor) (map[string]json.RawMessage, error) {
	if len(desc.Inputs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]json.RawMessage, len(desc.Inputs))
	for _, field := range desc.Inputs {
		raw, err := b.Read(ctx, field.Name)
		switch {
		case err == nil:
			inputs[field.Name] = raw
		case errors.Is(err, bus.ErrMissingContext):
			if field.Default == nil {
				return nil, fmt.Errorf("worker %s: input %q: %w", desc.ID, field.Name, bus.ErrMissingContext)
			}
			inputs[field.Name] = field.Default
		default:
			return nil, fmt.Errorf("worker %s: read input %q: %w", desc.ID, field.Name, err)
		}
	}
	return inputs, nil
}

// publishFields appends the outcome's produced fields to the bus in
// field-name order. A key collision is a definition bug and fatal.
func (o *Orchestrator) publishFields(ctx context.Context, b *bus.Bus, inv *worker.Invocation, out *worker.Outcome) error {
	if len(out.Fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(out.Fields))
	for name := range out.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := bus.Key{Phase: inv.Phase, Iteration: inv.Iteration, Worker: inv.Worker, Field: name}
		if err := b.WriteRaw(ctx, key, out.Fields[name]); err != nil {
			return err
		}
	}
	return nil
}

// acquireLane blocks until the capability lane admits the dispatch or
// the context ends. Rate and concurrency limits come from the limit
// manager; an unconfigured lane admits immediately.
func (o *Orchestrator) acquireLane(ctx context.Context, lane, workerID string) error {
	if o.limits.Acquire(lane, workerID) {
		return nil
	}
	ticker := time.NewTicker(o.laneRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lane %q for %s: %w", lane, workerID, ctx.Err())
		case <-ticker.C:
			if o.limits.Acquire(lane, workerID) {
				return nil
			}
		}
	}
}

// deadLetter pushes a terminally failed invocation to the DLQ, when one
// is configured.
func (o *Orchestrator) deadLetter(ctx context.Context, inv *worker.Invocation, invErr error) {
	if o.deadLetters == nil {
		return
	}
	if invErr == nil {
		if inv.Outcome != nil && inv.Outcome.Error != "" {
			invErr = errors.New(inv.Outcome.Error)
		} else {
			invErr = fmt.Errorf("worker %s reported failure", inv.Worker)
		}
	}
	if err := o.deadLetters.Push(ctx, inv, invErr); err != nil {
		o.logger.Error("push to dead letter queue",
			slog.String("invocation_id", inv.ID.String()),
			slog.String("worker", inv.Worker),
			slog.String("error", err.Error()),
		)
		return
	}
	o.extensions.EmitWorkerDeadLettered(ctx, inv, invErr)
}

// publishCompletion feeds the outcome back into the trigger pipeline as
// a WorkerCompleted event, one cascade level deeper than the run. Runs
// already at the depth bound emit nothing.
func (o *Orchestrator) publishCompletion(ctx context.Context, run *workflow.Run, inv *worker.Invocation, out *worker.Outcome) {
	if o.events == nil || run.Depth >= o.maxTriggerDepth {
		return
	}
	counts := make(map[string]int)
	for sev, n := range worker.CountBySeverity(out.Diagnostics) {
		counts[string(sev)] = n
	}
	evt := event.NewWorkerCompleted(event.WorkerCompletedPayload{
		RunID:     run.ID.String(),
		Workflow:  run.Workflow,
		Phase:     inv.Phase,
		Iteration: inv.Iteration,
		Worker:    inv.Worker,
		Status:    string(out.Status),
		Counts:    counts,
	}, run.Depth+1)
	if err := o.events.Publish(ctx, evt); err != nil {
		o.logger.Error("publish worker completion event",
			slog.String("run_id", run.ID.String()),
			slog.String("worker", inv.Worker),
			slog.String("error", err.Error()),
		)
	}
}

// classifyError folds an invocation error into a failure outcome:
// deadline overruns keep their timeout identity, cancellations stay
// bare, anything else is wrapped as an invocation failure.
func classifyError(err error, workerID string) *worker.Outcome {
	switch {
	case errors.Is(err, worker.ErrTimeout):
		out := worker.Failed(err)
		out.AddDiagnostic(worker.SeverityHigh, "timeout", fmt.Sprintf("worker %s exceeded its deadline", workerID))
		return out
	case errors.Is(err, context.Canceled):
		return worker.Failed(fmt.Errorf("worker %s cancelled: %w", workerID, err))
	case errors.Is(err, worker.ErrInvocation):
		return worker.Failed(err)
	default:
		return worker.Failed(fmt.Errorf("%w: %v", worker.ErrInvocation, err))
	}
}
