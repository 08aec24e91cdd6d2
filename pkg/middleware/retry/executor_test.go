package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/pkg/llm"
	"planner/pkg/llmerrors"
)

// fakeSleep records requested delays without waiting.
func fakeSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestFailTwiceThenSucceed(t *testing.T) {
	e := NewExecutor(3, time.Second)
	var delays []time.Duration
	e.sleep = fakeSleep(&delays)

	attempts := 0
	result, err := Do(context.Background(), e, "op-1", func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("connection reset")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 0, e.RetryCount("op-1"), "success must clear the pending retry count")
	assert.Equal(t, []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}, delays)
}

func TestValidationErrorIsAttemptedOnce(t *testing.T) {
	e := NewExecutor(3, time.Second)
	var delays []time.Duration
	e.sleep = fakeSleep(&delays)

	attempts := 0
	_, err := Do(context.Background(), e, "op-2", func(context.Context) (string, error) {
		attempts++
		return "", llmerrors.NewError(llmerrors.ErrorTypeValidation, "invalid input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, delays)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeValidation))
}

func TestParsingErrorIsNotRetried(t *testing.T) {
	e := NewExecutor(3, time.Second)
	e.sleep = func(context.Context, time.Duration) error { return nil }

	attempts := 0
	_, err := Do(context.Background(), e, "op-parse", func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("failed to parse JSON block")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExhaustedRetriesPropagateLastError(t *testing.T) {
	e := NewExecutor(3, time.Second)
	e.sleep = func(context.Context, time.Duration) error { return nil }

	lastErr := errors.New("network unreachable (final)")
	attempts := 0
	_, err := Do(context.Background(), e, "op-3", func(context.Context) (string, error) {
		attempts++
		if attempts == 3 {
			return "", lastErr
		}
		return "", errors.New("network unreachable")
	})

	require.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, e.RetryCount("op-3"))
}

func TestDelaySchedule(t *testing.T) {
	e := NewExecutor(5, time.Second)
	assert.Equal(t, time.Duration(0), e.Delay(1))
	assert.Equal(t, 1*time.Second, e.Delay(2))
	assert.Equal(t, 2*time.Second, e.Delay(3))
	assert.Equal(t, 4*time.Second, e.Delay(4))
}

func TestWithTimeoutReturnsOperationResult(t *testing.T) {
	result, err := WithTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "fast", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fast", result)
}

func TestWithTimeoutFallback(t *testing.T) {
	slow := func(ctx context.Context) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// No fallback: classified timeout error.
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, slow, nil)
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeService))

	// Fallback supplies the result.
	result, err := WithTimeout(context.Background(), 20*time.Millisecond, slow, func() (string, error) {
		return "fallback", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", result)

	// A failing fallback surfaces the original timeout error.
	_, err = WithTimeout(context.Background(), 20*time.Millisecond, slow, func() (string, error) {
		return "", errors.New("fallback broke")
	})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "fallback broke")
	assert.Contains(t, err.Error(), "timed out")
}

func TestWithFallback(t *testing.T) {
	result, degraded, err := WithFallback(context.Background(),
		func(context.Context) (string, error) { return "", errors.New("primary down") },
		func(context.Context) (string, error) { return "degraded output", nil },
	)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, "degraded output", result)

	result, degraded, err = WithFallback(context.Background(),
		func(context.Context) (string, error) { return "primary output", nil },
		func(context.Context) (string, error) { return "unused", nil },
	)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "primary output", result)
}

func TestMiddlewareRetriesTransientFailures(t *testing.T) {
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{Content: "recovered"}},
		[]error{errors.New("connection reset"), errors.New("connection reset")},
	)

	e := NewExecutor(3, time.Millisecond)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	client := llm.Chain(mock, Middleware(e, "completion"))

	resp, err := client.Complete(context.Background(),
		llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 3, mock.Calls())
}
