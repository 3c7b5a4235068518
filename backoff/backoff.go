// Package backoff computes how long a poller waits after consecutive
// store errors before polling again.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay after the n-th consecutive failure
// (1-indexed). Implementations are stateless and safe for concurrent use.
type Strategy interface {
	Delay(failures int) time.Duration
}

// ── Constant ─────────────────────────────────────────────────────

// Constant waits the same interval after every failure.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(int) time.Duration { return c.Interval }

// ── Exponential ──────────────────────────────────────────────────

// Exponential doubles the delay per failure, capped at Max.
// Delay = min(Initial * 2^(failures-1), Max). Jitter, when set, draws the
// delay uniformly from [0, that value] so pollers that failed together
// do not retry together.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

// Delay returns the capped, optionally jittered, exponential delay.
func (e *Exponential) Delay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(failures-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter {
		d *= rand.Float64() //nolint:gosec // jitter does not need crypto rand
	}
	return time.Duration(d)
}

// DefaultStrategy returns the poll error backoff used by worker pools:
// jittered exponential from 100ms up to 30s.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(100*time.Millisecond, 30*time.Second)
}

// ── Tracker ──────────────────────────────────────────────────────

// Tracker counts consecutive failures for one poller. It is not safe for
// concurrent use; each poller owns its own.
type Tracker struct {
	strategy Strategy
	failures int
}

// NewTracker creates a Tracker over s. A nil s uses DefaultStrategy.
func NewTracker(s Strategy) *Tracker {
	if s == nil {
		s = DefaultStrategy()
	}
	return &Tracker{strategy: s}
}

// Failure records a failure and returns how long to wait.
func (t *Tracker) Failure() time.Duration {
	t.failures++
	return t.strategy.Delay(t.failures)
}

// Reset clears the failure streak after a successful poll.
func (t *Tracker) Reset() { t.failures = 0 }

// Failures returns the current streak length.
func (t *Tracker) Failures() int { return t.failures }
