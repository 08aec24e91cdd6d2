// Package ratelimit provides rate-limit middleware for generation clients.
package ratelimit

import (
	"context"

	"planner/pkg/llm"
	"planner/pkg/llmerrors"
)

// Middleware returns a middleware that denies requests once the sliding
// window for the generation-requests key is exhausted. Denials surface as a
// classified rate-limit error; there is no internal queueing or retry.
func Middleware(limiter *Limiter) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !limiter.CheckAndRecord(KeyGenerationRequests) {
					return llm.CompletionResponse{}, llmerrors.NewError(
						llmerrors.ErrorTypeRateLimit,
						"rate limit exceeded for "+KeyGenerationRequests+": please wait before retrying",
					)
				}
				return next.Complete(ctx, req)
			},
			next.ModelName,
		)
	}
}
