package worker

import (
	"math"
	"time"
)

// RetryPolicy governs how often a failed sync task is retried before it
// lands in the dead-letter queue. Zero-value fields fall back to the
// policy used for the archive and sheets mirrors.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// withDefaults fills unset fields. The worker constructor applies this
// once so callers can hand over a partial policy.
func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries == 0 {
		r.MaxRetries = 5
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = 2 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Minute
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay returns the backoff before the given attempt (1-based),
// clamped to MaxDelay. A task that failed archiving waits this long
// before it is pushed back onto the queue.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	r = r.withDefaults()

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if d > r.MaxDelay || d <= 0 {
		d = r.MaxDelay
	}
	return d
}
