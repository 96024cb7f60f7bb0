package retry

import (
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker guards one operation class. After Threshold consecutive
// retryable failures it opens and short-circuits calls until Cooldown
// elapses; the first call after that is a probe that either closes the
// breaker or reopens it and restarts the cooldown clock.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	now                 func() time.Time // overridable for tests
}

// NewBreaker creates a closed breaker with the given trip threshold and
// cooldown period.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		state:     BreakerClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. An open breaker whose
// cooldown has elapsed transitions to half-open and admits exactly one
// probe call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		// A probe is already in flight; it resolves the state.
		return false
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.Cooldown {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.state = BreakerClosed
}

// RecordFailure counts a retryable failure. A half-open probe failure
// reopens immediately; a closed breaker opens once the consecutive
// failure count crosses the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	if b.state == BreakerHalfOpen || (b.Threshold > 0 && b.consecutiveFailures >= b.Threshold) {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current consecutive failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}
