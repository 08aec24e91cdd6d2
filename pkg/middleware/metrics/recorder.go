// Package metrics provides metrics recording for generation operations.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording generation metrics.
type Recorder interface {
	// ObserveRequest records a completed generation request.
	ObserveRequest(model, step string, success bool, errorType string, duration time.Duration)

	// AddTokens records token usage for a request.
	AddTokens(model string, promptTokens, completionTokens int)

	// IncThrottle increments the throttle counter for rate limiting events.
	IncThrottle(model, reason string)

	// IncFallback increments the fallback counter when a pipeline stage
	// substitutes deterministic output for a failed generation.
	IncFallback(stage string)

	// IncCacheEvent records a response-cache hit or miss.
	IncCacheEvent(hit bool)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are
// disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all observations.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _ string, _ bool, _ string, _ time.Duration) {}

// AddTokens does nothing in the no-op recorder.
func (n *NoopRecorder) AddTokens(_ string, _, _ int) {}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_, _ string) {}

// IncFallback does nothing in the no-op recorder.
func (n *NoopRecorder) IncFallback(_ string) {}

// IncCacheEvent does nothing in the no-op recorder.
func (n *NoopRecorder) IncCacheEvent(_ bool) {}
