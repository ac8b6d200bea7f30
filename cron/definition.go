package cron

// Definition is a typed schedule definition. T is the args type
// (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this schedule entry.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string

	// Target names the worker or workflow to dispatch on each tick.
	Target Target

	// Args is the static payload published with every dispatch.
	Args T
}
