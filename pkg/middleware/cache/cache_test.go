package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/pkg/llm"
)

func TestGetReturnsStoredPayload(t *testing.T) {
	c := New[string](DefaultTTL, DefaultMaxEntries)
	c.Set("key", "payload")

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "payload", got)

	_, ok = c.Get("absent")
	assert.False(t, ok)
}

func TestExpiredEntryIsRemovedOnLookup(t *testing.T) {
	c := New[string](time.Minute, DefaultMaxEntries)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("key", "payload")

	// Advance past the TTL.
	c.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, ok := c.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size(), "expired entry should be deleted from storage")
}

func TestEvictionKeepsMostRecentlyTouched(t *testing.T) {
	c := New[int](DefaultTTL, 100)

	base := time.Now()
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	for i := 0; i < 101; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}

	assert.LessOrEqual(t, c.Size(), 100)

	// key-0 was written first and never touched again: evicted.
	_, ok := c.Get("key-0")
	assert.False(t, ok)

	// The newest write survives.
	got, ok := c.Get("key-100")
	require.True(t, ok)
	assert.Equal(t, 100, got)
}

func TestGetRefreshesRecency(t *testing.T) {
	c := New[int](DefaultTTL, 100)

	base := time.Now()
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}

	// Touch the oldest entry, then overflow the cap by one.
	_, ok := c.Get("key-0")
	require.True(t, ok)
	c.Set("key-overflow", -1)

	// key-0 was just touched, so key-1 is now the eviction candidate.
	_, ok = c.Get("key-0")
	assert.True(t, ok)
	_, ok = c.Get("key-1")
	assert.False(t, ok)
}

func TestExportImportDropsExpired(t *testing.T) {
	src := New[string](time.Minute, DefaultMaxEntries)

	base := time.Now()
	src.now = func() time.Time { return base }
	src.Set("live", "a")
	src.Set("doomed", "b")

	exported := src.Export()
	require.Len(t, exported, 2)

	// Import into a cache whose clock is past the TTL: everything is stale.
	stale := New[string](time.Minute, DefaultMaxEntries)
	stale.now = func() time.Time { return base.Add(2 * time.Minute) }
	stale.Import(exported)
	assert.Equal(t, 0, stale.Size())

	// Import with a fresh clock keeps the entries and their hit counts.
	fresh := New[string](time.Minute, DefaultMaxEntries)
	fresh.now = func() time.Time { return base.Add(10 * time.Second) }
	fresh.Import(exported)
	assert.Equal(t, 2, fresh.Size())
	got, ok := fresh.Get("live")
	require.True(t, ok)
	assert.Equal(t, "a", got)
}

func TestFingerprintDeterminism(t *testing.T) {
	a := Fingerprint("model", "  prompt  ")
	b := Fingerprint("model", "prompt")
	c := Fingerprint("model", "other prompt")

	assert.Equal(t, a, b, "whitespace must not change the fingerprint")
	assert.NotEqual(t, a, c)
}

func TestMiddlewareServesSecondCallFromCache(t *testing.T) {
	mock := llm.NewMockClientWithContent("generated once")
	responses := New[llm.CompletionResponse](DefaultTTL, DefaultMaxEntries)
	var events []bool
	client := llm.Chain(mock, Middleware(responses, func(hit bool) { events = append(events, hit) }))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("same prompt")})

	first, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	second, err := client.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, mock.Calls(), "second call must be served from cache")
	assert.Equal(t, []bool{false, true}, events)
}

func TestMiddlewareDoesNotCacheFailures(t *testing.T) {
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{Content: "eventually"}},
		[]error{errors.New("ai service timeout")},
	)
	responses := New[llm.CompletionResponse](DefaultTTL, DefaultMaxEntries)
	client := llm.Chain(mock, Middleware(responses, nil))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("prompt")})

	_, err := client.Complete(context.Background(), req)
	require.Error(t, err)

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Content)
	assert.Equal(t, 2, mock.Calls())
}
