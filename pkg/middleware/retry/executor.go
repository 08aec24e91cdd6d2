// Package retry provides exponential-backoff retry, timeout, and fallback
// wrappers around single asynchronous operations.
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"planner/pkg/llmerrors"
	"planner/pkg/logx"
)

const (
	// DefaultMaxAttempts is the total number of attempts, including the first.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the backoff before the second attempt; each further
	// attempt doubles it.
	DefaultBaseDelay = 1000 * time.Millisecond
)

// Executor retries operations with exponential backoff. Validation and
// parsing failures are never retried: a retry cannot fix malformed input or
// an un-parseable response.
type Executor struct {
	mu          sync.Mutex
	maxAttempts int
	baseDelay   time.Duration
	retryCounts map[string]int
	logger      *logx.Logger

	sleep func(ctx context.Context, d time.Duration) error // Injectable for tests
}

// NewExecutor creates a retry executor. Non-positive arguments fall back to
// the defaults.
func NewExecutor(maxAttempts int, baseDelay time.Duration) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Executor{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		retryCounts: make(map[string]int),
		logger:      logx.NewLogger("retry"),
		sleep:       sleepWithContext,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // Context error propagated as-is.
	case <-time.After(d):
		return nil
	}
}

// Delay computes the backoff before the given attempt (2-based): attempt 2
// waits base, attempt 3 waits 2*base, and so on.
func (e *Executor) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return e.baseDelay * (1 << (attempt - 2))
}

// RetryCount returns the pending retry count for an operation id.
func (e *Executor) RetryCount(opID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryCounts[opID]
}

func (e *Executor) setRetryCount(opID string, count int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if count == 0 {
		delete(e.retryCounts, opID)
		return
	}
	e.retryCounts[opID] = count
}

// Do runs op with up to maxAttempts attempts. On success the retry counter
// for opID is cleared and the value returned. Non-retryable errors
// (validation, parsing) propagate immediately; otherwise Do backs off
// exponentially between attempts and propagates the last error once attempts
// are exhausted.
func Do[T any](ctx context.Context, e *Executor, opID string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.Delay(attempt)); err != nil {
				return zero, fmt.Errorf("retry cancelled: %w", err)
			}
		}

		result, err := op(ctx)
		if err == nil {
			e.setRetryCount(opID, 0)
			return result, nil
		}

		lastErr = err
		if !llmerrors.IsRetryable(err) {
			e.logger.Debug("%s: non-retryable %s error, giving up", opID, llmerrors.TypeOf(err))
			e.setRetryCount(opID, 0)
			return zero, err
		}

		e.setRetryCount(opID, attempt)
		e.logger.Warn("%s: attempt %d/%d failed: %v", opID, attempt, e.maxAttempts, err)
	}

	return zero, lastErr
}

// WithTimeout races op against a timer. On timeout the fallback, when
// supplied, provides the result; if the fallback itself fails, the original
// timeout error is surfaced, not the fallback's. A timed-out operation may
// still complete in the background; its result is discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error), fallback func() (T, error)) (T, error) {
	var zero T

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := op(ctx)
		done <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err() //nolint:wrapcheck // Context error propagated as-is.
	case <-timer.C:
		timeoutErr := llmerrors.NewError(llmerrors.ErrorTypeService,
			fmt.Sprintf("operation timed out after %v", d))
		if fallback == nil {
			return zero, timeoutErr
		}
		value, err := fallback()
		if err != nil {
			return zero, timeoutErr
		}
		return value, nil
	}
}

// WithFallback runs primary and unconditionally falls back on any failure.
// The returned degraded flag tells the caller that fallback output is in use.
func WithFallback[T any](ctx context.Context, primary, fallback func(ctx context.Context) (T, error)) (result T, degraded bool, err error) {
	result, err = primary(ctx)
	if err == nil {
		return result, false, nil
	}

	logx.Warnf("primary operation failed, using degraded fallback: %v", err)
	result, fbErr := fallback(ctx)
	if fbErr != nil {
		return result, true, fmt.Errorf("fallback also failed: %w", fbErr)
	}
	return result, true, nil
}
