package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "lnscraper/pkg/errors"
	"lnscraper/pkg/logger"
)

// ErrCircuitOpen is returned without invoking the operation when the
// breaker for its operation class is open and the cooldown has not
// elapsed. It is a backpressure signal, not an application crash.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// RetriesExhaustedError is returned when an operation kept failing with
// retryable errors until the configured attempt limit.
type RetriesExhaustedError struct {
	Operation string
	Attempts  int
	LastErr   error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Operation, e.Attempts, e.LastErr)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// FatalError wraps a failure the classifier marked as fatal. It aborts
// the attempt chain immediately and does not count toward the breaker.
type FatalError struct {
	Operation string
	Err       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: fatal failure: %v", e.Operation, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Operation is a fallible unit of work routed through the executor.
type Operation func(ctx context.Context) error

// Classifier decides whether a failure is worth retrying.
type Classifier func(error) errs.Class

// AttemptOutcome is the result of a single attempt.
type AttemptOutcome string

const (
	OutcomeSuccess          AttemptOutcome = "success"
	OutcomeRetryableFailure AttemptOutcome = "retryable_failure"
	OutcomeFatalFailure     AttemptOutcome = "fatal_failure"
)

// AttemptRecord describes one attempt of one call through the executor.
// Records are ephemeral; they feed logging and the optional OnAttempt
// hook and are never persisted.
type AttemptRecord struct {
	CallID    string
	Operation string
	Attempt   int
	Outcome   AttemptOutcome
	Elapsed   time.Duration
	ErrType   errs.ErrorType
}

// Config holds executor configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts per call.
	MaxAttempts int
	// Backoff strategy between retryable failures.
	Backoff BackoffStrategy
	// BreakerThreshold is the consecutive-failure count that opens the
	// breaker for an operation class. Zero disables the breaker.
	BreakerThreshold int
	// BreakerCooldown is how long an open breaker short-circuits calls.
	BreakerCooldown time.Duration
	// OnAttempt is called after every attempt, if set.
	OnAttempt func(AttemptRecord)
	// Logger for attempt outcomes.
	Logger logger.Logger
}

// DefaultConfig returns an executor configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:      3,
		Backoff:          DefaultExponentialBackoff(),
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
		Logger:           logger.GetLogger(),
	}
}

// Executor wraps fallible operations with bounded exponential-backoff
// retry and a circuit breaker per operation class. One executor belongs
// to one session; breaker state is never shared across sessions.
type Executor struct {
	config *Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(cfg *Config) *Executor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Executor{
		config:   cfg,
		breakers: make(map[string]*Breaker),
	}
}

// BreakerFor returns the breaker guarding the given operation class,
// creating it on first use.
func (e *Executor) BreakerFor(operation string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.breakers[operation]
	if !ok {
		b = NewBreaker(e.config.BreakerThreshold, e.config.BreakerCooldown)
		e.breakers[operation] = b
	}
	return b
}

// Execute runs op with retry, backoff, and breaker discipline.
//
// Fatal failures abort immediately and do not count toward the breaker.
// Retryable failures back off with base*multiplier^(attempt-1) capped at
// the maximum, with uniform jitter, sleeping interruptibly so a stop
// request is honored mid-wait.
func (e *Executor) Execute(ctx context.Context, operation string, op Operation, classify Classifier) error {
	if classify == nil {
		classify = errs.Classify
	}

	breaker := e.BreakerFor(operation)
	callID := uuid.NewString()
	log := e.config.Logger

	if !breaker.Allow() {
		if log != nil {
			log.WarnWithFields("circuit open, failing fast", map[string]interface{}{
				"operation": operation,
				"call_id":   callID,
			})
		}
		return fmt.Errorf("%s: %w", operation, ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		// Re-check the breaker between attempts; a half-open probe that
		// failed must not be followed by more attempts from this call.
		if attempt > 1 && !breaker.Allow() {
			return fmt.Errorf("%s: %w", operation, ErrCircuitOpen)
		}

		start := time.Now()
		err := op(ctx)
		elapsed := time.Since(start)

		if err == nil {
			breaker.RecordSuccess()
			e.record(AttemptRecord{callID, operation, attempt, OutcomeSuccess, elapsed, ""})
			if attempt > 1 && log != nil {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"operation": operation,
					"attempt":   attempt,
				})
			}
			return nil
		}

		lastErr = err

		if classify(err) == errs.ClassFatal {
			e.record(AttemptRecord{callID, operation, attempt, OutcomeFatalFailure, elapsed, errs.TypeOf(err)})
			if log != nil {
				log.DebugWithFields("error is not retryable", map[string]interface{}{
					"operation": operation,
					"error":     err.Error(),
				})
			}
			return &FatalError{Operation: operation, Err: err}
		}

		breaker.RecordFailure()
		e.record(AttemptRecord{callID, operation, attempt, OutcomeRetryableFailure, elapsed, errs.TypeOf(err)})

		if e.config.MaxAttempts > 0 && attempt >= e.config.MaxAttempts {
			if log != nil {
				log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"operation":  operation,
					"attempts":   attempt,
					"last_error": lastErr.Error(),
				})
			}
			return &RetriesExhaustedError{Operation: operation, Attempts: attempt, LastErr: lastErr}
		}

		delay := e.config.Backoff.NextDelay(attempt)
		if log != nil {
			log.WarnWithFields("retrying operation", map[string]interface{}{
				"operation":    operation,
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": e.config.MaxAttempts,
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("%s: retry cancelled: %w", operation, err)
		}
	}
}

// ExecuteWithResult runs an operation that returns a value.
func ExecuteWithResult[T any](e *Executor, ctx context.Context, operation string, op func(ctx context.Context) (T, error), classify Classifier) (T, error) {
	var result T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	}, classify)
	return result, err
}

func (e *Executor) record(rec AttemptRecord) {
	if e.config.OnAttempt != nil {
		e.config.OnAttempt(rec)
	}
}
