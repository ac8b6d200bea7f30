// Package audit is a Foreman extension that records lifecycle events to
// an audit trail.
//
// Every run, phase, worker, trigger, and schedule hook emits a structured
// entry through the [Recorder] interface. The extension assigns severity
// levels (info for normal operations, warning for advisory degradation,
// critical for terminal failures) and rich metadata (workflow name, phase,
// elapsed time, errors).
//
// Two recorders ship with the package: [NewSlogRecorder] writes entries
// to a structured logger, and [NewFileRecorder] appends them to a
// JSON-lines file for later inspection.
//
// # Selective filtering
//
//	audit.New(recorder,
//	    audit.WithActions(
//	        audit.ActionRunFailed,
//	        audit.ActionWorkerFailed,
//	        audit.ActionWorkerDeadLettered,
//	    ),
//	)
package audit
