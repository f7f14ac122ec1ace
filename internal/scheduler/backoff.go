package scheduler

import (
	"math"
	"time"
)

// Backoff computes the delay before retry attempt n (1-indexed:
// attempt 1 is the first retry after the initial failure). Strategies
// are stateless and safe for concurrent use.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt:
// Delay = min(Initial * 2^(attempt-1), Max). A zero Max means no cap.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Constant always returns the same delay. Used in tests to keep retry
// scenarios fast.
type Constant struct {
	Interval time.Duration
}

// Delay returns the fixed interval.
func (c Constant) Delay(_ int) time.Duration {
	return c.Interval
}
