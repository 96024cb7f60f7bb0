// Package retry provides bounded exponential-backoff retry wrapped in a
// circuit breaker.
//
// The executor separates retryable from fatal failures through a
// classifier so that backoff is never wasted on errors that can never
// succeed. Repeated retryable failures trip a per-operation-class
// breaker; while the breaker is open, calls fail fast with
// ErrCircuitOpen instead of hammering an endpoint that is already
// failing. After the cooldown, a single half-open probe decides whether
// the breaker closes again.
//
// Basic usage:
//
//	exec := retry.NewExecutor(retry.DefaultConfig())
//	err := exec.Execute(ctx, "fetch_page", func(ctx context.Context) error {
//		return fetchPage(ctx)
//	}, nil)
//
// All sleeps are interruptible through the context, so cancellation is
// honored mid-backoff.
package retry
