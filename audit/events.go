package audit

// Audit actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the recorded entry.
const (
	ActionRunStarted         = "run.started"
	ActionRunCompleted       = "run.completed"
	ActionRunFailed          = "run.failed"
	ActionPhaseStarted       = "phase.started"
	ActionPhaseCompleted     = "phase.completed"
	ActionLoopIterated       = "loop.iterated"
	ActionWorkerDispatched   = "worker.dispatched"
	ActionWorkerCompleted    = "worker.completed"
	ActionWorkerFailed       = "worker.failed"
	ActionWorkerDeadLettered = "worker.dead_lettered"
	ActionTriggerMatched     = "trigger.matched"
	ActionScheduleFired      = "schedule.fired"
)

// Audit categories group related actions.
const (
	CategoryRun     = "foreman.run"
	CategoryWorker  = "foreman.worker"
	CategoryTrigger = "foreman.trigger"
)

// Resource types used as the Resource field of recorded entries.
const (
	ResourceRun        = "workflow_run"
	ResourceInvocation = "invocation"
	ResourceEvent      = "event"
	ResourceSchedule   = "schedule_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionRunStarted,
		ActionRunCompleted,
		ActionRunFailed,
		ActionPhaseStarted,
		ActionPhaseCompleted,
		ActionLoopIterated,
		ActionWorkerDispatched,
		ActionWorkerCompleted,
		ActionWorkerFailed,
		ActionWorkerDeadLettered,
		ActionTriggerMatched,
		ActionScheduleFired,
	}
}
