// Package backoff provides retry delay strategies for the client
// resilience layer. All strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy computes the delay before a reconnect attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (0-indexed).
	// Attempt 0 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
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
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^attempt, Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^attempt, capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt)))
	if e.Max > 0 && (d > e.Max || d <= 0) {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (additive jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter adds a bounded random offset to an exponential
// base. Delay = min(Base * 2^attempt, Max) + random in [0, Jitter).
// The jitter spreads simultaneous reconnects so a restarted server is
// not hit by a synchronized retry storm.
type ExponentialWithJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with
// additive jitter.
func NewExponentialWithJitter(base, maxDelay, jitter time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Base: base, Max: maxDelay, Jitter: jitter}
}

// Delay returns min(Base * 2^attempt, Max) plus a random jitter offset.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	d := (&Exponential{Base: e.Base, Max: e.Max}).Delay(attempt)
	if e.Jitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*float64(e.Jitter)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the backoff used by the stream client:
// 1s base doubling to a 30s cap, with up to 1s of jitter.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(time.Second, 30*time.Second, time.Second)
}
