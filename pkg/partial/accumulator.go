package partial

import (
	"sync"

	"lnscraper/pkg/logger"
	"lnscraper/pkg/models"
)

// PageFailure annotates one page that could not be extracted.
type PageFailure struct {
	Marker string `json:"marker"`
	Reason string `json:"reason"`
}

// Result is the immutable outcome of an extraction session: every
// successfully extracted item in the order its batch was recorded, plus
// an annotation for every skipped page.
type Result struct {
	Posts        []models.Post
	PageFailures []PageFailure
	// Degraded is set when the session stopped early because the
	// consecutive-failure-page threshold was reached. A degraded result
	// is still a partial success, not a failure.
	Degraded bool
}

// SuccessRate returns the fraction of units of work that yielded items.
func (r *Result) SuccessRate() float64 {
	total := len(r.Posts) + len(r.PageFailures)
	if total == 0 {
		return 0
	}
	return float64(len(r.Posts)) / float64(total)
}

// Config holds the degradation policy knobs.
type Config struct {
	// ConsecutiveFailureLimit stops the session after this many page
	// failures in a row. Zero disables the limit.
	ConsecutiveFailureLimit int
	// MaxItems stops the session once this many items are collected.
	// Zero means unlimited.
	MaxItems int
	// PriorItems counts items collected by earlier runs of the same
	// session; they count against MaxItems on resume.
	PriorItems int
}

// Accumulator collects extracted items and failure annotations
// page-by-page and decides when the session should stop collecting.
// There is exactly one producer; Finalize may additionally be called
// from the interruption path.
type Accumulator struct {
	config Config
	logger logger.Logger

	mu                  sync.Mutex
	posts               []models.Post
	failures            []PageFailure
	consecutiveFailures int
	stopRequested       bool

	finalizeOnce sync.Once
	result       *Result
}

// NewAccumulator creates an accumulator with the given policy.
func NewAccumulator(cfg Config) *Accumulator {
	return &Accumulator{
		config: cfg,
		logger: logger.GetLogger(),
	}
}

// RecordSuccess appends a batch of extracted items, preserving the
// order batches were recorded, and resets the consecutive-failure run.
func (a *Accumulator) RecordSuccess(items []models.Post) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.posts = append(a.posts, items...)
	a.consecutiveFailures = 0
}

// RecordPageFailure annotates one unit of work that yielded no items.
// A page gets either a batch or a failure annotation, never both.
func (a *Accumulator) RecordPageFailure(marker, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.failures = append(a.failures, PageFailure{Marker: marker, Reason: reason})
	a.consecutiveFailures++

	a.logger.WarnWithFields("page failure recorded", map[string]interface{}{
		"marker":               marker,
		"reason":               reason,
		"consecutive_failures": a.consecutiveFailures,
	})
}

// RequestStop sets the external stop signal.
func (a *Accumulator) RequestStop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopRequested = true
}

// ShouldContinue encodes the degradation policy: collection stops when
// the consecutive-failure threshold is reached, the item cap is hit, or
// an external stop was requested. Reaching the threshold is reported as
// a partial success, not a failure.
func (a *Accumulator) ShouldContinue() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopRequested {
		return false
	}
	if a.config.ConsecutiveFailureLimit > 0 && a.consecutiveFailures >= a.config.ConsecutiveFailureLimit {
		return false
	}
	if a.config.MaxItems > 0 && a.config.PriorItems+len(a.posts) >= a.config.MaxItems {
		return false
	}
	return true
}

// Collected returns the number of items collected so far.
func (a *Accumulator) Collected() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.posts)
}

// FailedPages returns the number of page failures recorded so far.
func (a *Accumulator) FailedPages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.failures)
}

// Finalize seals the accumulator and returns the immutable result
// snapshot. It is idempotent: every call returns the same snapshot, so
// it is safe to call from an interruption handler as well as from the
// normal completion path.
func (a *Accumulator) Finalize() *Result {
	a.finalizeOnce.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		result := &Result{
			Posts:        make([]models.Post, len(a.posts)),
			PageFailures: make([]PageFailure, len(a.failures)),
			Degraded: a.config.ConsecutiveFailureLimit > 0 &&
				a.consecutiveFailures >= a.config.ConsecutiveFailureLimit,
		}
		copy(result.Posts, a.posts)
		copy(result.PageFailures, a.failures)
		a.result = result

		a.logger.InfoWithFields("extraction finalized", map[string]interface{}{
			"collected":    len(result.Posts),
			"failed_pages": len(result.PageFailures),
			"degraded":     result.Degraded,
		})
	})
	return a.result
}
