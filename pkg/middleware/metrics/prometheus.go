// Package metrics provides Prometheus-based metrics recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	fallbackTotal   *prometheus.CounterVec
	cacheTotal      *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
// Collectors register with the default registry; create at most one per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_generation_requests_total",
				Help: "Total number of generation requests by model, workflow step, and status",
			},
			[]string{"model", "step", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_generation_tokens_total",
				Help: "Total number of tokens used in generation requests",
			},
			[]string{"model", "type"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "planner_generation_request_duration_seconds",
				Help:    "Duration of generation requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "step"},
		),
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_generation_throttle_total",
				Help: "Total number of rate limiting events",
			},
			[]string{"model", "reason"},
		),
		fallbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_pipeline_fallback_total",
				Help: "Total number of deterministic fallbacks by pipeline stage",
			},
			[]string{"stage"},
		),
		cacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_response_cache_events_total",
				Help: "Response cache hits and misses",
			},
			[]string{"result"},
		),
	}
}

// ObserveRequest records metrics for a completed generation request.
func (p *PrometheusRecorder) ObserveRequest(model, step string, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(model, step, status, errorType).Inc()
	p.requestDuration.WithLabelValues(model, step).Observe(duration.Seconds())
}

// AddTokens records token usage for a request.
func (p *PrometheusRecorder) AddTokens(model string, promptTokens, completionTokens int) {
	p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

// IncThrottle increments the throttle counter.
func (p *PrometheusRecorder) IncThrottle(model, reason string) {
	p.throttleTotal.WithLabelValues(model, reason).Inc()
}

// IncFallback increments the fallback counter for a pipeline stage.
func (p *PrometheusRecorder) IncFallback(stage string) {
	p.fallbackTotal.WithLabelValues(stage).Inc()
}

// IncCacheEvent records a cache hit or miss.
func (p *PrometheusRecorder) IncCacheEvent(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheTotal.WithLabelValues(result).Inc()
}
