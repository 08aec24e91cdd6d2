// Package metrics provides observation middleware for generation clients.
package metrics

import (
	"context"
	"time"

	"planner/pkg/llm"
	"planner/pkg/llmerrors"
	"planner/pkg/tokens"
)

// Middleware returns a middleware that records request outcome, duration, and
// token usage for every completion. Rate-limit denials additionally count as
// throttle events. The step function reports the workflow step the request
// serves; it may be nil.
func Middleware(recorder Recorder, counter *tokens.Counter, step func() string) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	stepLabel := func() string {
		if step == nil {
			return ""
		}
		return step()
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				model := next.ModelName()
				if err != nil {
					errType := llmerrors.TypeOf(err)
					recorder.ObserveRequest(model, stepLabel(), false, errType.String(), duration)
					if errType == llmerrors.ErrorTypeRateLimit {
						recorder.IncThrottle(model, "window_exhausted")
					}
					return llm.CompletionResponse{}, err
				}

				recorder.ObserveRequest(model, stepLabel(), true, "", duration)
				if counter != nil {
					recorder.AddTokens(model, counter.Count(req.PromptText()), counter.Count(resp.Content))
				}
				return resp, nil
			},
			next.ModelName,
		)
	}
}
