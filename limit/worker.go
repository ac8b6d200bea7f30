package limit

import (
	"fmt"

	"golang.org/x/time/rate"
)

// WorkerConfig defines rate limits and concurrency for one worker on
// one capability lane. Event-triggered workers are the usual target: a
// per-worker rate limit stops a noisy file watcher from dispatching the
// same worker in a tight loop.
type WorkerConfig struct {
	// Capability is the lane this config applies to.
	Capability string

	// WorkerID is the worker identifier.
	WorkerID string

	// RateLimit is the sustained dispatches per second for this worker.
	RateLimit float64

	// RateBurst is the burst size for the worker's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous invocations of this worker on
	// this lane. Zero means no worker-specific concurrency limit.
	MaxConcurrency int
}

// workerState tracks runtime state for a single lane+worker pair.
type workerState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// workerKey builds the map key for a lane+worker pair.
func workerKey(capability, workerID string) string {
	return fmt.Sprintf("%s:%s", capability, workerID)
}

// SetWorkerConfig configures rate limits and concurrency for one worker
// on one lane. Calling this multiple times for the same lane+worker
// replaces the previous configuration.
func (m *Manager) SetWorkerConfig(cfg WorkerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workerKey(cfg.Capability, cfg.WorkerID)
	existing := m.workers[key]

	ws := &workerState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ws.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ws.active = existing.active
	}
	m.workers[key] = ws
}

// WorkerActiveCount returns the current number of active invocations
// for a lane+worker pair.
func (m *Manager) WorkerActiveCount(capability, workerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws := m.workers[workerKey(capability, workerID)]; ws != nil {
		return ws.active
	}
	return 0
}
