package limit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-capability behaviour such as rate limiting and
// concurrency.
type Config struct {
	// Capability is the lane identifier (a capability tag workers
	// advertise in their descriptors).
	Capability string

	// MaxConcurrency limits how many workers on this lane may run
	// simultaneously within the local engine. Zero means no
	// lane-specific limit (engine-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained dispatches per second allowed
	// on this lane. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// laneState tracks runtime state for a single capability lane.
type laneState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-capability and per-worker rate limiting and
// concurrency. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	lanes   map[string]*laneState
	workers map[string]*workerState
}

// NewManager creates a Manager with the given lane configurations.
// Capabilities not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		lanes:   make(map[string]*laneState, len(configs)),
		workers: make(map[string]*workerState),
	}
	for _, cfg := range configs {
		m.lanes[cfg.Capability] = newLaneState(cfg)
	}
	return m
}

func newLaneState(cfg Config) *laneState {
	ls := &laneState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ls.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ls
}

// Acquire checks rate limits and concurrency for the given capability
// and worker. If the dispatch is allowed to proceed it increments the
// active counter and returns true. The caller MUST call Release when
// the worker completes.
func (m *Manager) Acquire(capability, workerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check lane-level constraints.
	ls := m.lanes[capability]
	if ls != nil {
		if ls.limiter != nil && !ls.limiter.Allow() {
			return false
		}
		if ls.config.MaxConcurrency > 0 && ls.active >= ls.config.MaxConcurrency {
			return false
		}
	}

	// Check worker-level constraints.
	if workerID != "" {
		ws := m.workers[workerKey(capability, workerID)]
		if ws != nil {
			if ws.limiter != nil && !ws.limiter.Allow() {
				return false
			}
			if ws.maxConcurrency > 0 && ws.active >= ws.maxConcurrency {
				return false
			}
			ws.active++
		}
	}

	// Increment lane active count.
	if ls != nil {
		ls.active++
	}

	return true
}

// Release decrements the active dispatch count for the capability and
// worker.
func (m *Manager) Release(capability, workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ls := m.lanes[capability]; ls != nil && ls.active > 0 {
		ls.active--
	}

	if workerID != "" {
		if ws := m.workers[workerKey(capability, workerID)]; ws != nil && ws.active > 0 {
			ws.active--
		}
	}
}

// SetConfig dynamically updates (or creates) a lane configuration.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.lanes[cfg.Capability]
	ls := newLaneState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ls.active = existing.active
	}
	m.lanes[cfg.Capability] = ls
}

// ActiveCount returns the current number of active dispatches on a lane.
func (m *Manager) ActiveCount(capability string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls := m.lanes[capability]; ls != nil {
		return ls.active
	}
	return 0
}
