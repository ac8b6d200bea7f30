// Package trigger turns observed events into worker invocations.
//
// The Evaluator matches events against the declarative predicates
// workers carry in their descriptors: event kinds, path globs over
// changed files, and regular expressions over event text. Explicit
// commands bypass matching and name their target directly.
//
// The Reactor is the long-lived consumer. It claims events from the
// bus, evaluates them, and launches an ad-hoc single-phase run per
// matched set, holding confirm-gated matches behind an approver and
// bounding WorkerCompleted cascades by their depth.
package trigger
