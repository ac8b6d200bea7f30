package foreman

import "time"

// Config holds configuration for the Foreman coordinator.
type Config struct {
	// Concurrency is the maximum number of triggered runs executed
	// concurrently by the reactor.
	Concurrency int

	// PollInterval is how often the reactor polls for new events.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// WorkerTimeout is the default per-invocation deadline applied when a
	// worker descriptor declares none. Zero disables the default deadline.
	WorkerTimeout time.Duration

	// MaxTriggerDepth bounds WorkerCompleted trigger cascades: a run
	// started at this depth emits no further trigger fan-out.
	MaxTriggerDepth int

	// DefaultMaxIterations is applied to validation loops that declare no
	// explicit iteration bound.
	DefaultMaxIterations int

	// HeartbeatInterval is how often a live instance heartbeats the
	// cluster store in watch mode.
	HeartbeatInterval time.Duration

	// StaleInstanceThreshold is how long before an instance without a
	// heartbeat is considered dead.
	StaleInstanceThreshold time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:            4,
		PollInterval:           1 * time.Second,
		ShutdownTimeout:        30 * time.Second,
		WorkerTimeout:          5 * time.Minute,
		MaxTriggerDepth:        3,
		DefaultMaxIterations:   3,
		HeartbeatInterval:      10 * time.Second,
		StaleInstanceThreshold: 30 * time.Second,
	}
}
