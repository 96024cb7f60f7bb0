package progress

import (
	"sync"
	"time"
)

const defaultRateWindow = 2 * time.Minute

// Snapshot is a derived view of session progress, recomputed on demand
// from the counters and wall-clock time. It is never persisted.
type Snapshot struct {
	Elapsed        time.Duration
	ItemsCollected int
	ItemsAttempted int
	Errors         int
	// RatePerMinute is computed over a trailing window, not the
	// all-time average, so the ETA reacts to recent slowdowns.
	RatePerMinute float64
	// TotalEstimate is the externally supplied total item count, zero
	// when unknown.
	TotalEstimate   int
	PercentComplete float64
	// EstimatedRemaining and ETA are only meaningful when HasEstimate
	// is true; without a total estimate they are reported as unknown
	// rather than a misleading zero.
	EstimatedRemaining time.Duration
	ETA                time.Time
	HasEstimate        bool
}

type sample struct {
	at        time.Time
	collected int
}

// Accountant accumulates progress ticks from the single session worker
// and derives throughput, completion percentage, and ETA. Snapshot is
// safe to call from a separate observer goroutine at any time.
type Accountant struct {
	mu            sync.RWMutex
	startedAt     time.Time
	collected     int
	attempted     int
	errors        int
	totalEstimate int
	window        time.Duration
	samples       []sample
	now           func() time.Time
}

// NewAccountant creates an accountant starting from zero counters.
func NewAccountant() *Accountant {
	a := &Accountant{
		window: defaultRateWindow,
		now:    time.Now,
	}
	a.startedAt = a.now()
	a.samples = append(a.samples, sample{at: a.startedAt})
	return a
}

// Seed initializes the accountant from resumed session counters. The
// accountant holds no resources, so reconstruction after resume is just
// a seed from the checkpoint.
func (a *Accountant) Seed(collected, attempted, errors int, startedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.collected = collected
	a.attempted = attempted
	a.errors = errors
	if !startedAt.IsZero() {
		a.startedAt = startedAt
	}
	a.samples = []sample{{at: a.now(), collected: collected}}
}

// SetTotalEstimate supplies an external total-count estimate. Zero
// clears it.
func (a *Accountant) SetTotalEstimate(total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalEstimate = total
}

// Tick records progress deltas from the session loop.
func (a *Accountant) Tick(deltaCollected, deltaAttempted, deltaErrors int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.collected += deltaCollected
	a.attempted += deltaAttempted
	a.errors += deltaErrors

	now := a.now()
	a.samples = append(a.samples, sample{at: now, collected: a.collected})
	a.trim(now)
}

// trim drops samples older than the trailing window, always keeping at
// least one so a rate can be computed against the window edge.
func (a *Accountant) trim(now time.Time) {
	cutoff := now.Add(-a.window)
	i := 0
	for i < len(a.samples)-1 && a.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		a.samples = append(a.samples[:0], a.samples[i:]...)
	}
}

// Snapshot derives the current progress view.
func (a *Accountant) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	snap := Snapshot{
		Elapsed:        now.Sub(a.startedAt),
		ItemsCollected: a.collected,
		ItemsAttempted: a.attempted,
		Errors:         a.errors,
		TotalEstimate:  a.totalEstimate,
	}

	if len(a.samples) >= 2 {
		first := a.samples[0]
		last := a.samples[len(a.samples)-1]
		span := last.at.Sub(first.at)
		if span > 0 {
			snap.RatePerMinute = float64(last.collected-first.collected) / span.Minutes()
		}
	}

	if a.totalEstimate > 0 {
		snap.PercentComplete = 100 * float64(a.collected) / float64(a.totalEstimate)
		if snap.PercentComplete > 100 {
			snap.PercentComplete = 100
		}
		if snap.RatePerMinute > 0 && a.collected < a.totalEstimate {
			remaining := a.totalEstimate - a.collected
			snap.EstimatedRemaining = time.Duration(float64(remaining) / snap.RatePerMinute * float64(time.Minute))
			snap.ETA = now.Add(snap.EstimatedRemaining)
			snap.HasEstimate = true
		}
	}

	return snap
}
