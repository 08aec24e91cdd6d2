package logx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerCapturesRecentEntries(t *testing.T) {
	start := time.Now().Add(-time.Second)

	logger := NewLogger("logx-test")
	logger.Info("first message %d", 1)
	logger.Warn("second message")

	entries := GetRecentEntries("logx-test", start)
	require.Len(t, entries, 2)
	assert.Equal(t, "first message 1", entries[0].Message)
	assert.Equal(t, string(LevelInfo), entries[0].Level)
	assert.Equal(t, string(LevelWarn), entries[1].Level)
}

func TestComponentFilter(t *testing.T) {
	start := time.Now().Add(-time.Second)

	NewLogger("component-a").Info("from a")
	NewLogger("component-b").Info("from b")

	entries := GetRecentEntries("component-a", start)
	for i := range entries {
		assert.Equal(t, "component-a", entries[i].Component)
	}
	assert.NotEmpty(t, entries)
}

func TestDebugSuppressedByDefault(t *testing.T) {
	prev := IsDebugEnabled()
	defer SetDebug(prev)

	SetDebug(false)
	start := time.Now().Add(-time.Second)
	NewLogger("debug-test").Debug("should not appear")
	assert.Empty(t, GetRecentEntries("debug-test", start))

	SetDebug(true)
	NewLogger("debug-test").Debug("should appear")
	assert.Len(t, GetRecentEntries("debug-test", start), 1)
}

func TestErrorfReturnsError(t *testing.T) {
	err := Errorf("operation failed: %s", "reason")
	require.Error(t, err)
	assert.Equal(t, "operation failed: reason", err.Error())
}
