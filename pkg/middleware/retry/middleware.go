// Package retry provides retry middleware for generation clients.
package retry

import (
	"context"

	"planner/pkg/llm"
)

// Middleware returns a middleware that retries failed completions through the
// executor. The operation id keys the executor's per-operation retry counter.
func Middleware(executor *Executor, opID string) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				return Do(ctx, executor, opID, func(ctx context.Context) (llm.CompletionResponse, error) {
					return next.Complete(ctx, req)
				})
			},
			next.ModelName,
		)
	}
}
