package limit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Manager basics
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	// No configs; Acquire/Release should always succeed.
	if !m.Acquire("any-capability", "") {
		t.Fatal("expected Acquire to succeed for unconfigured lane")
	}
	m.Release("any-capability", "")
}

func TestNewManager_WithConfig(t *testing.T) {
	m := NewManager(Config{
		Capability:     "analysis",
		MaxConcurrency: 2,
	})
	if m.ActiveCount("analysis") != 0 {
		t.Fatal("expected 0 active dispatches initially")
	}
}

// ---------------------------------------------------------------------------
// Concurrency limits
// ---------------------------------------------------------------------------

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Config{
		Capability:     "analysis",
		MaxConcurrency: 2,
	})

	if !m.Acquire("analysis", "") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("analysis", "") {
		t.Fatal("second Acquire should succeed")
	}
	// Third should be blocked.
	if m.Acquire("analysis", "") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	// Release one slot.
	m.Release("analysis", "")
	if !m.Acquire("analysis", "") {
		t.Fatal("Acquire should succeed after Release")
	}
}

func TestManager_AcquireRelease_ActiveCount(t *testing.T) {
	m := NewManager(Config{
		Capability:     "lint",
		MaxConcurrency: 5,
	})

	for i := range 3 {
		if !m.Acquire("lint", "") {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	if m.ActiveCount("lint") != 3 {
		t.Fatalf("expected 3 active, got %d", m.ActiveCount("lint"))
	}

	m.Release("lint", "")
	m.Release("lint", "")
	if m.ActiveCount("lint") != 1 {
		t.Fatalf("expected 1 active, got %d", m.ActiveCount("lint"))
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager(Config{
		Capability: "limited",
		RateLimit:  1.0, // 1 per second
		RateBurst:  1,
	})

	// First should succeed (burst allows it).
	if !m.Acquire("limited", "") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release("limited", "")

	// Immediately after, token bucket is empty.
	if m.Acquire("limited", "") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	// Wait for token refill.
	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("limited", "") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("limited", "")
}

func TestManager_RateLimit_BurstAllows(t *testing.T) {
	m := NewManager(Config{
		Capability: "bursty",
		RateLimit:  10.0,
		RateBurst:  3,
	})

	// Three immediate acquires should succeed (burst = 3).
	for i := range 3 {
		if !m.Acquire("bursty", "") {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		m.Release("bursty", "")
	}
}

// ---------------------------------------------------------------------------
// Per-worker isolation
// ---------------------------------------------------------------------------

func TestManager_WorkerRateLimit(t *testing.T) {
	m := NewManager(Config{
		Capability:     "shared",
		MaxConcurrency: 100, // high lane limit
	})

	m.SetWorkerConfig(WorkerConfig{
		Capability:     "shared",
		WorkerID:       "code-reviewer",
		MaxConcurrency: 1,
	})

	// code-reviewer: first dispatch succeeds.
	if !m.Acquire("shared", "code-reviewer") {
		t.Fatal("code-reviewer first Acquire should succeed")
	}
	// code-reviewer: second dispatch blocked.
	if m.Acquire("shared", "code-reviewer") {
		t.Fatal("code-reviewer second Acquire should fail (worker max 1)")
	}

	// security-scanner (no config): should still succeed.
	if !m.Acquire("shared", "security-scanner") {
		t.Fatal("security-scanner Acquire should succeed (no worker limit)")
	}

	m.Release("shared", "code-reviewer")
	m.Release("shared", "security-scanner")
}

func TestManager_WorkerIsolation(t *testing.T) {
	m := NewManager(Config{
		Capability:     "scan",
		MaxConcurrency: 100,
	})

	m.SetWorkerConfig(WorkerConfig{
		Capability:     "scan",
		WorkerID:       "security-scanner",
		MaxConcurrency: 2,
	})
	m.SetWorkerConfig(WorkerConfig{
		Capability:     "scan",
		WorkerID:       "dep-auditor",
		MaxConcurrency: 2,
	})

	// Fill security-scanner slots.
	m.Acquire("scan", "security-scanner")
	m.Acquire("scan", "security-scanner")

	// security-scanner is maxed.
	if m.Acquire("scan", "security-scanner") {
		t.Fatal("security-scanner should be blocked at max concurrency")
	}

	// dep-auditor is unaffected.
	if !m.Acquire("scan", "dep-auditor") {
		t.Fatal("dep-auditor should not be affected by security-scanner's limits")
	}

	m.Release("scan", "security-scanner")
	m.Release("scan", "security-scanner")
	m.Release("scan", "dep-auditor")
}

func TestManager_WorkerActiveCount(t *testing.T) {
	m := NewManager(Config{Capability: "lint", MaxConcurrency: 10})
	m.SetWorkerConfig(WorkerConfig{
		Capability:     "lint",
		WorkerID:       "style-checker",
		MaxConcurrency: 5,
	})

	m.Acquire("lint", "style-checker")
	m.Acquire("lint", "style-checker")

	if got := m.WorkerActiveCount("lint", "style-checker"); got != 2 {
		t.Fatalf("expected worker active 2, got %d", got)
	}

	m.Release("lint", "style-checker")
	if got := m.WorkerActiveCount("lint", "style-checker"); got != 1 {
		t.Fatalf("expected worker active 1, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetConfig(t *testing.T) {
	m := NewManager(Config{
		Capability:     "dyn",
		MaxConcurrency: 1,
	})

	m.Acquire("dyn", "")
	if m.Acquire("dyn", "") {
		t.Fatal("should be blocked at concurrency 1")
	}

	// Raise the limit dynamically.
	m.SetConfig(Config{
		Capability:     "dyn",
		MaxConcurrency: 3,
	})

	// Now should succeed.
	if !m.Acquire("dyn", "") {
		t.Fatal("should succeed after raising concurrency")
	}
	m.Release("dyn", "")
	m.Release("dyn", "")
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Config{
		Capability:     "concurrent",
		MaxConcurrency: 50,
	})

	var acquired atomic.Int64
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("concurrent", "") {
				acquired.Add(1)
				// Simulate work.
				time.Sleep(time.Millisecond)
				m.Release("concurrent", "")
			}
		}()
	}

	wg.Wait()

	// At least some should have succeeded.
	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}

	// Active should be back to 0.
	if m.ActiveCount("concurrent") != 0 {
		t.Fatalf("expected 0 active after all goroutines, got %d", m.ActiveCount("concurrent"))
	}
}

func TestManager_UnconfiguredLane_AlwaysSucceeds(t *testing.T) {
	m := NewManager(Config{
		Capability:     "configured",
		MaxConcurrency: 1,
	})

	// "other" lane has no config, so no limits apply.
	for range 10 {
		if !m.Acquire("other", "") {
			t.Fatal("unconfigured lane should always allow Acquire")
		}
	}
	for range 10 {
		m.Release("other", "")
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Config{
		Capability:     "lint",
		MaxConcurrency: 5,
	})

	// Release without Acquire should not go negative.
	m.Release("lint", "")
	if m.ActiveCount("lint") != 0 {
		t.Fatal("active count should not go below 0")
	}
}
