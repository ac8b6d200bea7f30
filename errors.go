package foreman

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("foreman: no store configured")
	ErrStoreClosed     = errors.New("foreman: store closed")
	ErrMigrationFailed = errors.New("foreman: migration failed")

	// Not found errors.
	ErrRunNotFound        = errors.New("foreman: run not found")
	ErrDefinitionNotFound = errors.New("foreman: workflow definition not found")
	ErrInvocationNotFound = errors.New("foreman: invocation not found")
	ErrEventNotFound      = errors.New("foreman: event not found")
	ErrScheduleNotFound   = errors.New("foreman: schedule entry not found")
	ErrDeadLetterNotFound = errors.New("foreman: dead letter entry not found")
	ErrInstanceNotFound   = errors.New("foreman: instance not found")
	ErrEntryNotFound      = errors.New("foreman: context entry not found")

	// Conflict errors.
	ErrRunAlreadyExists    = errors.New("foreman: run already exists")
	ErrDuplicateSchedule   = errors.New("foreman: duplicate schedule entry")
	ErrDuplicateDefinition = errors.New("foreman: duplicate workflow definition")

	// State errors.
	ErrInvalidState = errors.New("foreman: invalid state transition")

	// Cluster errors.
	ErrLeadershipLost = errors.New("foreman: leadership lost")
	ErrNotLeader      = errors.New("foreman: not the leader")
)
