// Package cache provides response-cache middleware for generation clients.
package cache

import (
	"context"
	"fmt"

	"planner/pkg/llm"
)

// Middleware returns a middleware that memoizes successful completions.
// The key fingerprints the model plus the full normalized prompt, so any
// change to the conversation misses the cache. onEvent, when non-nil, is
// called with the hit/miss outcome of every lookup.
func Middleware(responses *Cache[llm.CompletionResponse], onEvent func(hit bool)) llm.Middleware {
	if onEvent == nil {
		onEvent = func(bool) {}
	}
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				key := RequestKey(next.ModelName(), req)
				if cached, ok := responses.Get(key); ok {
					onEvent(true)
					return cached, nil
				}
				onEvent(false)

				resp, err := next.Complete(ctx, req)
				if err != nil {
					return llm.CompletionResponse{}, err
				}

				responses.Set(key, resp)
				return resp, nil
			},
			next.ModelName,
		)
	}
}

// RequestKey fingerprints a completion request for cache lookup.
func RequestKey(model string, req llm.CompletionRequest) string {
	return Fingerprint(
		model,
		req.PromptText(),
		fmt.Sprintf("max=%d temp=%.2f", req.MaxTokens, req.Temperature),
	)
}
