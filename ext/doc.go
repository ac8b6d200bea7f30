// Package ext defines the extension system for Foreman.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnWorkerCompleted(ctx context.Context, inv *worker.Invocation, out *worker.Outcome, elapsed time.Duration) error {
//	    log.Printf("worker %s finished in %s", inv.Worker, elapsed)
//	    return nil
//	}
//
// # Worker Lifecycle Hooks
//
//   - [WorkerDispatched] — a worker was selected and is about to run
//   - [WorkerCompleted] — a worker reported a terminal outcome
//   - [WorkerFailed] — a worker invocation failed with an error
//   - [WorkerDeadLettered] — a failed invocation was moved to the DLQ
//
// # Run Lifecycle Hooks
//
//   - [RunStarted] — a workflow run began
//   - [PhaseStarted] — a phase (or loop iteration) began
//   - [PhaseCompleted] — a phase reached a terminal status
//   - [LoopIterated] — a validation loop finished one pass
//   - [RunCompleted] — a run finished successfully
//   - [RunFailed] — a run ended failed or partially failed
//
// # Other Hooks
//
//   - [TriggerMatched] — an event matched a worker's trigger predicate
//   - [ScheduleFired] — a schedule entry published its command
//   - [Shutdown] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
