// Package ratelimit provides sliding-window admission control over outbound
// generation requests.
package ratelimit

import (
	"sync"
	"time"

	"planner/pkg/logx"
)

const (
	// DefaultWindow is the sliding admission window.
	DefaultWindow = 60 * time.Second

	// DefaultMaxRequests is the number of calls admitted per window.
	DefaultMaxRequests = 20
)

// KeyGenerationRequests is the logical operation name for generation calls.
const KeyGenerationRequests = "generation-requests"

// Stats reports current limiter state for one key.
type Stats struct {
	Key       string `json:"key"`
	InWindow  int    `json:"in_window"`
	Max       int    `json:"max"`
	Denials   int64  `json:"denials"`
	Admitted  int64  `json:"admitted"`
	WindowSec int    `json:"window_sec"`
}

// Limiter admits or denies calls per logical operation key over a sliding
// window. Denial is surfaced to the caller; the limiter never queues.
type Limiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	timestamps  map[string][]time.Time
	admitted    map[string]int64
	denials     map[string]int64
	logger      *logx.Logger

	now func() time.Time // Injectable clock for tests
}

// NewLimiter creates a sliding-window limiter. Non-positive arguments fall
// back to the defaults.
func NewLimiter(window time.Duration, maxRequests int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &Limiter{
		window:      window,
		maxRequests: maxRequests,
		timestamps:  make(map[string][]time.Time),
		admitted:    make(map[string]int64),
		denials:     make(map[string]int64),
		logger:      logx.NewLogger("ratelimit"),
		now:         time.Now,
	}
}

// CheckAndRecord prunes timestamps older than the window for key, then admits
// the call if the window has capacity, recording the current instant on
// admission.
func (l *Limiter) CheckAndRecord(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.timestamps[key][:0]
	for _, ts := range l.timestamps[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps[key] = kept

	if len(kept) >= l.maxRequests {
		l.denials[key]++
		l.logger.Warn("denied %s: %d calls in window (max %d)", key, len(kept), l.maxRequests)
		return false
	}

	l.timestamps[key] = append(kept, now)
	l.admitted[key]++
	return true
}

// Remaining returns how many calls the window for key can still admit.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	inWindow := 0
	for _, ts := range l.timestamps[key] {
		if ts.After(cutoff) {
			inWindow++
		}
	}
	if inWindow >= l.maxRequests {
		return 0
	}
	return l.maxRequests - inWindow
}

// Reset clears recorded timestamps for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.timestamps, key)
}

// GetStats returns current limiter statistics for key.
func (l *Limiter) GetStats(key string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	inWindow := 0
	for _, ts := range l.timestamps[key] {
		if ts.After(cutoff) {
			inWindow++
		}
	}

	return Stats{
		Key:       key,
		InWindow:  inWindow,
		Max:       l.maxRequests,
		Denials:   l.denials[key],
		Admitted:  l.admitted[key],
		WindowSec: int(l.window / time.Second),
	}
}
