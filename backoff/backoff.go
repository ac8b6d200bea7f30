// Package backoff provides pluggable delay strategies for validation
// loop re-entry. All strategies are safe for concurrent use (they are
// stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a loop re-runs its phase.
type Strategy interface {
	// Delay returns how long to wait before iteration n+1, where n is
	// the number of completed iterations (1 after the first pass).
	Delay(completed int) time.Duration
}

// ──────────────────────────────────────────────────
// None
// ──────────────────────────────────────────────────

// None re-enters immediately. It is the default for loops that do not
// name a strategy.
type None struct{}

// NewNone creates a no-delay strategy.
func NewNone() *None { return &None{} }

// Delay returns zero.
func (*None) Delay(_ int) time.Duration { return 0 }

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of how many
// iterations have completed.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the iteration count.
// Delay = min(Initial * completed, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * completed, capped at Max.
func (l *Linear) Delay(completed int) time.Duration {
	d := l.Initial * time.Duration(completed)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each iteration.
// Delay = min(Initial * 2^(completed-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(completed-1), capped at Max.
func (e *Exponential) Delay(completed int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(completed-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(completed-1), Max)].
// This prevents thundering herd when many loops re-enter simultaneously.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(completed-1), Max)].
func (e *ExponentialWithJitter) Delay(completed int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(completed-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Lookup
// ──────────────────────────────────────────────────

// ForName resolves the strategy named in a loop declaration. Known
// names are "none", "constant", "linear", "exponential" and
// "exponential_jitter"; anything else (including "") resolves to None.
func ForName(name string) Strategy {
	switch name {
	case "constant":
		return NewConstant(2 * time.Second)
	case "linear":
		return NewLinear(1*time.Second, 30*time.Second)
	case "exponential":
		return NewExponential(1*time.Second, 1*time.Minute)
	case "exponential_jitter":
		return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
	default:
		return NewNone()
	}
}

// DefaultStrategy returns a general-purpose strategy for callers
// building their own retry flows: ExponentialWithJitter with 1s
// initial and 1m max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}
