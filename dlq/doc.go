// Package dlq provides the dead letter queue for worker invocations
// that failed terminally. It supports inspection, replay, and purging.
//
// When a non-advisory worker fails and its phase cannot recover (no
// loop, or the loop budget is spent), the orchestrator calls
// [Service.Push] to move the invocation into the DLQ. The resolved
// inputs, error message, and run coordinates are preserved for
// debugging.
//
// # Entry
//
// A [Entry] captures:
//   - InvocationID / RunID / Workflow / Phase / Worker: where it failed
//   - Iteration: which loop pass produced the failure
//   - Inputs: the resolved contract fields at dispatch time
//   - Error: the final error message
//   - FailedAt: when the terminal failure occurred
//   - ReplayedAt: set when the entry is replayed (nil if not yet replayed)
//
// # Service
//
// [Service] wraps the DLQ store with high-level operations:
//
//	svc := dlq.NewService(store, eventStore)
//
//	// Push is called by the orchestrator on terminal failure.
//	svc.Push(ctx, failedInvocation, err)
//
//	// Access the underlying store for list/get/purge/count.
//	svc.DLQStore().ListDLQ(ctx, dlq.ListOpts{Limit: 50})
//
// # Replay
//
// Replaying an entry publishes an ExplicitCommand event that names the
// original worker and carries the original inputs, so the dispatch goes
// back through the normal trigger path (predicates skipped, target
// explicit). Replay sets ReplayedAt on the DLQ entry. The CLI exposes
// this as `foreman replay <entry-id>`.
package dlq
