package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/foreman/backoff"
	"github.com/xraph/foreman/bus"
	"github.com/xraph/foreman/worker"
	"github.com/xraph/foreman/workflow"
)

// resolvedRef is one dispatchable worker after reference resolution:
// capability refs are fanned out, focus filtering applied, duplicates
// dropped.
type resolvedRef struct {
	desc     *worker.Descriptor
	invoker  worker.Invoker
	advisory bool

	// lane is the capability the concurrency limiter meters this
	// dispatch on: the selecting capability for capability refs, the
	// first declared capability otherwise.
	lane string
}

// executePhase runs one phase to its terminal status, iterating when a
// validation loop is declared. It returns true when the failure policy
// aborts the run: a hard worker failure, a contract violation, or
// cancellation.
func (o *Orchestrator) executePhase(ctx context.Context, run *workflow.Run, p *workflow.Phase, b *bus.Bus) (abort bool) {
	cursor := run.Phase(p.Name)
	start := time.Now()

	refs, err := o.resolveRefs(p, run.Focus)
	if err != nil {
		cursor.Status = workflow.PhaseFailed
		cursor.Error = err.Error()
		run.Error = err.Error()
		o.extensions.EmitPhaseCompleted(ctx, run, p.Name, cursor.Status, time.Since(start))
		return true
	}
	if len(refs) == 0 {
		cursor.Status = workflow.PhaseSkipped
		o.logger.Info("phase skipped by focus",
			slog.String("run_id", run.ID.String()),
			slog.String("phase", p.Name),
		)
		o.extensions.EmitPhaseCompleted(ctx, run, p.Name, cursor.Status, time.Since(start))
		return false
	}

	maxIterations := 1
	var delay backoff.Strategy = backoff.NewNone()
	if p.Loop != nil {
		maxIterations = p.Loop.MaxIterations
		if run.MaxIterations > 0 {
			maxIterations = run.MaxIterations
		}
		if maxIterations < 1 {
			maxIterations = o.defaultMaxIterations
		}
		delay = backoff.ForName(p.Loop.Backoff)
	}

	cursor.Status = workflow.PhaseRunning

	var hardFailed, softFailed, exhausted bool
	for iteration := 1; iteration <= maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			cursor.Status = workflow.PhaseFailed
			cursor.Error = "phase cancelled: " + err.Error()
			run.Error = cursor.Error
			o.extensions.EmitPhaseCompleted(ctx, run, p.Name, cursor.Status, time.Since(start))
			return true
		}

		cursor.Iterations = iteration
		o.extensions.EmitPhaseStarted(ctx, run, p.Name, iteration)

		outcomes, err := o.dispatch(ctx, run, p, refs, iteration, b)
		if err != nil {
			cursor.Status = workflow.PhaseFailed
			cursor.Error = err.Error()
			run.Error = err.Error()
			o.extensions.EmitPhaseCompleted(ctx, run, p.Name, cursor.Status, time.Since(start))
			return true
		}

		// Policy over the iteration's outcomes: a non-advisory failure is
		// hard and stops everything, advisory failures only degrade. The
		// final iteration's advisory failures decide the soft flag; a loop
		// that converges cleanly supersedes earlier degraded passes.
		hard, soft := classifyOutcomes(refs, outcomes)
		softFailed = soft
		if hard {
			hardFailed = true
			cursor.Error = firstFailure(refs, outcomes)
			break
		}

		if p.Loop == nil {
			break
		}
		satisfied := p.Loop.Until.Eval(worker.MergeValues(outcomes))
		o.extensions.EmitLoopIterated(ctx, run, p.Name, iteration, satisfied)
		o.logger.Debug("loop iteration evaluated",
			slog.String("run_id", run.ID.String()),
			slog.String("phase", p.Name),
			slog.Int("iteration", iteration),
			slog.String("until", p.Loop.Until.String()),
			slog.Bool("satisfied", satisfied),
		)
		if satisfied {
			break
		}
		if iteration == maxIterations {
			exhausted = true
			break
		}
		if err := o.pause(ctx, delay.Delay(iteration)); err != nil {
			cursor.Status = workflow.PhaseFailed
			cursor.Error = "phase cancelled: " + err.Error()
			run.Error = cursor.Error
			o.extensions.EmitPhaseCompleted(ctx, run, p.Name, cursor.Status, time.Since(start))
			return true
		}
	}

	switch {
	case hardFailed:
		cursor.Status = workflow.PhaseFailed
		run.Error = cursor.Error
	case exhausted:
		cursor.Status = workflow.PhasePartiallyFailed
		cursor.Error = fmt.Sprintf("loop %q unsatisfied after %d iterations", p.Loop.Until.String(), cursor.Iterations)
	case softFailed:
		cursor.Status = workflow.PhasePartiallyFailed
	default:
		cursor.Status = workflow.PhaseSucceeded
	}
	o.extensions.EmitPhaseCompleted(ctx, run, p.Name, cursor.Status, time.Since(start))
	o.logger.Info("phase completed",
		slog.String("run_id", run.ID.String()),
		slog.String("phase", p.Name),
		slog.String("status", string(cursor.Status)),
		slog.Int("iterations", cursor.Iterations),
	)
	return hardFailed
}

// pause sleeps for the loop backoff delay, honoring cancellation.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resolveRefs expands a phase's worker references against the registry:
// direct IDs are looked up, capability refs fan out to every advertising
// worker in registration order, the focus filter drops non-matching
// descriptors, and duplicates keep their first occurrence. A reference
// that resolves to nothing at all is a definition bug and fails the
// phase.
func (o *Orchestrator) resolveRefs(p *workflow.Phase, focus []string) ([]resolvedRef, error) {
	var refs []resolvedRef
	seen := make(map[string]struct{})

	add := func(desc *worker.Descriptor, advisory bool, lane string) error {
		if _, dup := seen[desc.ID]; dup {
			return nil
		}
		seen[desc.ID] = struct{}{}
		if !desc.MatchesFocus(focus) {
			return nil
		}
		invoker, err := o.workers.Invoker(desc.ID)
		if err != nil {
			return fmt.Errorf("phase %q: %w", p.Name, err)
		}
		if lane == "" && len(desc.Capabilities) > 0 {
			lane = desc.Capabilities[0]
		}
		refs = append(refs, resolvedRef{
			desc:     desc,
			invoker:  invoker,
			advisory: advisory,
			lane:     lane,
		})
		return nil
	}

	for i := range p.Workers {
		ref := &p.Workers[i]
		if ref.ID != "" {
			desc, err := o.workers.Lookup(ref.ID)
			if err != nil {
				return nil, fmt.Errorf("phase %q: %w", p.Name, err)
			}
			if err := add(desc, ref.Advisory, ""); err != nil {
				return nil, err
			}
			continue
		}
		descs := o.workers.FindByCapability(ref.Capability)
		if len(descs) == 0 {
			return nil, fmt.Errorf("phase %q: %w: no worker advertises capability %q", p.Name, worker.ErrUnknownWorker, ref.Capability)
		}
		for _, desc := range descs {
			if err := add(desc, ref.Advisory, ref.Capability); err != nil {
				return nil, err
			}
		}
	}
	return refs, nil
}

// dispatch runs one iteration of a phase. Parallel phases fan out and
// always let every worker finish; sequential phases stop dispatching at
// the first non-advisory failure and record the rest as skipped. The
// returned error is reserved for contract violations and storage
// failures, which abort the run; worker failures live in the outcomes.
func (o *Orchestrator) dispatch(ctx context.Context, run *workflow.Run, p *workflow.Phase, refs []resolvedRef, iteration int, b *bus.Bus) ([]*worker.Outcome, error) {
	if p.Parallel {
		outcomes := make([]*worker.Outcome, len(refs))
		g, gctx := errgroup.WithContext(ctx)
		for i, ref := range refs {
			i, ref := i, ref
			g.Go(func() error {
				out, err := o.invoke(gctx, run, p.Name, iteration, ref, b)
				outcomes[i] = out
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return outcomes, nil
	}

	outcomes := make([]*worker.Outcome, 0, len(refs))
	for i, ref := range refs {
		out, err := o.invoke(ctx, run, p.Name, iteration, ref, b)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out)
		if out.Status == worker.StatusFailure && !ref.advisory {
			for _, rest := range refs[i+1:] {
				o.recordSkipped(ctx, run, p.Name, iteration, rest)
			}
			break
		}
	}
	return outcomes, nil
}

// classifyOutcomes splits an iteration's failures by policy: hard when a
// non-advisory worker failed, soft when only advisory workers did.
func classifyOutcomes(refs []resolvedRef, outcomes []*worker.Outcome) (hard, soft bool) {
	for i, out := range outcomes {
		if out == nil || out.Status != worker.StatusFailure {
			continue
		}
		if refs[i].advisory {
			soft = true
		} else {
			hard = true
		}
	}
	return hard, soft
}

// firstFailure returns the error text of the first non-advisory failure,
// for the phase cursor.
func firstFailure(refs []resolvedRef, outcomes []*worker.Outcome) string {
	for i, out := range outcomes {
		if out == nil || out.Status != worker.StatusFailure || refs[i].advisory {
			continue
		}
		if out.Error != "" {
			return fmt.Sprintf("worker %q failed: %s", refs[i].desc.ID, out.Error)
		}
		return fmt.Sprintf("worker %q failed", refs[i].desc.ID)
	}
	return ""
}
