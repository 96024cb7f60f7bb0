package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for request pacing between page fetches.
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or the
	// context is cancelled
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// SlidingWindow implements a sliding window rate limiter
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}

	return false
}

// Wait blocks until a request is allowed or the context is cancelled.
// The wait never outlives a shutdown request.
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		var timeToWait time.Duration
		if len(sw.requests) > 0 {
			timeToWait = sw.windowSize - time.Since(sw.requests[0])
		}
		sw.mu.Unlock()

		if timeToWait <= 0 {
			timeToWait = 100 * time.Millisecond
		}

		timer := time.NewTimer(timeToWait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && sw.requests[i].Before(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}
