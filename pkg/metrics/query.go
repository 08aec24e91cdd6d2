// Package metrics provides a service for querying aggregated generation
// usage from a Prometheus server.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// UsageReport aggregates generation usage for one model.
type UsageReport struct {
	Model            string  `json:"model"`
	Requests         int64   `json:"requests"`
	Errors           int64   `json:"errors"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	Fallbacks        int64   `json:"fallbacks"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}

// QueryService provides methods to query generation metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetUsageReport retrieves aggregated request, token, fallback, and cache
// metrics for the given model across all workflow steps. Series that do not
// exist yet read as zero.
func (q *QueryService) GetUsageReport(ctx context.Context, modelName string) (*UsageReport, error) {
	report := &UsageReport{Model: modelName}

	counters := []struct {
		expr string
		dest *int64
	}{
		{fmt.Sprintf(`sum(planner_generation_requests_total{model=%q})`, modelName), &report.Requests},
		{fmt.Sprintf(`sum(planner_generation_requests_total{model=%q, status="error"})`, modelName), &report.Errors},
		{fmt.Sprintf(`sum(planner_generation_tokens_total{model=%q, type="prompt"})`, modelName), &report.PromptTokens},
		{fmt.Sprintf(`sum(planner_generation_tokens_total{model=%q, type="completion"})`, modelName), &report.CompletionTokens},
		{`sum(planner_pipeline_fallback_total)`, &report.Fallbacks},
	}
	for _, counter := range counters {
		value, err := q.scalar(ctx, counter.expr)
		if err != nil {
			return nil, err
		}
		*counter.dest = int64(value)
	}
	report.TotalTokens = report.PromptTokens + report.CompletionTokens

	hits, err := q.scalar(ctx, `sum(planner_response_cache_events_total{result="hit"})`)
	if err != nil {
		return nil, err
	}
	lookups, err := q.scalar(ctx, `sum(planner_response_cache_events_total)`)
	if err != nil {
		return nil, err
	}
	if lookups > 0 {
		report.CacheHitRate = hits / lookups
	}

	return report, nil
}

// GetUsageByStep retrieves per-step request counts for the given model,
// keyed by workflow step label.
func (q *QueryService) GetUsageByStep(ctx context.Context, modelName string) (map[string]int64, error) {
	expr := fmt.Sprintf(`sum by (step) (planner_generation_requests_total{model=%q})`, modelName)
	result, _, err := q.queryAPI.Query(ctx, expr, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query per-step requests: %w", err)
	}

	byStep := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if step, ok := sample.Metric["step"]; ok {
				byStep[string(step)] = int64(sample.Value)
			}
		}
	}
	return byStep, nil
}

func (q *QueryService) scalar(ctx context.Context, expr string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, expr, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query %q: %w", expr, err)
	}

	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
