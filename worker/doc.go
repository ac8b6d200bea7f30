// Package worker defines the capability worker entity: descriptors,
// input/output contracts, outcomes, invocations, the registry, and the
// store interface.
//
// # Descriptor
//
// A [Descriptor] declares a capability module to the engine: a unique
// human-chosen ID, capability tags, trigger predicates, and the context
// bus fields it reads and writes. Workers are registered once at process
// start and are immutable thereafter; re-registration replaces by ID only
// when explicitly requested.
//
// # Invoker
//
// The engine treats a worker as an opaque function behind the [Invoker]
// interface: it receives an [Invocation] carrying a context snapshot and
// resolved input fields, and returns an [Outcome]. [InvokerFunc] adapts
// ordinary functions; [ExecInvoker] adapts external subprocesses speaking
// JSON over stdio.
//
// # Outcome
//
// An [Outcome] reports one of three statuses:
//
//	success          — the worker did its job
//	failure          — the worker could not do its job
//	needs_follow_up  — done, but another worker should react
//
// plus produced fields (written to the context bus), diagnostics with
// severities, and named numeric values consumed by validation-loop
// predicates.
//
// # Registry
//
// [Registry] maps worker IDs to descriptors and invokers in insertion
// order. Capability lookups return a stable, insertion-ordered slice, so
// capability-based selection is deterministic.
package worker
