// Package workflow defines the declarative workflow model: definitions,
// phases, validation loops, the run entity, and the store interface.
//
// # Definition
//
// A [Definition] is a named, static graph of phases. Each [Phase] lists
// the workers it dispatches (by ID or capability tag), whether they run
// in parallel, the phases it depends on, and an optional validation
// [Loop]. The phase graph must be a DAG; the only legal back-edges are
// loop self-edges, and those are bounded by MaxIterations, so every run
// terminates in finitely many steps.
//
// Omitting depends_on chains a phase to the one declared before it, so a
// plain list of phases is a sequential pipeline:
//
//	name: quality-sprint
//	phases:
//	  - name: review
//	    workers: [code-reviewer]
//	    loop: {until: "criticalCount == 0", max_iterations: 3}
//	  - name: refactor
//	    workers: [refactoring-expert]
//	  - name: test
//	    workers: [test-generator]
//	  - name: document
//	    workers: [doc-writer]
//
// # Run
//
// A [Run] is one execution of a definition. It progresses
// pending → running → {succeeded, partially_failed, failed} and tracks a
// per-phase cursor (status and iteration count). Runs are archived in the
// store at terminal status for inspection and aggregation.
package workflow
