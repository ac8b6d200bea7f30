// Package orchestrator sequences capability workers through the phases
// of a workflow run.
//
// The orchestrator owns the run state machine. Phases execute one at a
// time in declaration order once their dependencies reach a terminal
// status; concurrency lives inside parallel phases only. Each worker
// invocation travels through the middleware chain, reads its declared
// inputs off the context bus, and publishes its produced fields back,
// so the bus is the only channel between workers.
//
// # Failure policy
//
//   - A non-advisory worker failure fails its phase and aborts the run;
//     remaining phases are recorded as skipped.
//   - Advisory failures degrade the phase to partially_failed without
//     stopping anything.
//   - A sequential phase stops dispatching at the first non-advisory
//     failure; a parallel phase always lets every worker finish.
//   - Contract violations — a missing required input, a context key
//     collision, a reference to an unregistered worker — are definition
//     bugs and always fatal.
//
// # Validation loops
//
// A phase with a loop re-runs until its predicate holds over the merged
// numeric values of the latest iteration, or the iteration budget is
// spent. Exhaustion degrades the phase to partially_failed; the run
// continues into dependent phases.
//
// # Usage
//
//	orc := orchestrator.New(workers, defs, runStore, recordStore, busStore,
//		orchestrator.WithLogger(logger),
//		orchestrator.WithMiddleware(middleware.Recover(), middleware.Timeout()),
//	)
//	run, err := orc.Start(ctx, "quality-sprint", orchestrator.StartOptions{
//		Focus: []string{"security-review"},
//	})
package orchestrator
