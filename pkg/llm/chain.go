// Package llm provides middleware chaining for generation clients.
package llm

import (
	"context"
)

// Middleware represents a function that wraps a Client with additional
// behavior. Middlewares are composed using Chain() into a processing pipeline.
type Middleware func(next Client) Client

// clientFunc adapts plain functions to the Client interface.
type clientFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f clientFunc) ModelName() string {
	return f.modelName()
}

// WrapClient creates a Client from the provided function implementations.
// This is a helper for middleware implementations that need to wrap behavior.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	modelName func() string,
) Client {
	return clientFunc{
		complete:  complete,
		modelName: modelName,
	}
}

// Chain composes multiple middlewares around a base Client.
// Middlewares are applied in order, with earlier middlewares being outermost:
//
//	Chain(client, mw1, mw2, mw3) creates the call stack mw1 -> mw2 -> mw3 -> client
//
// so mw1 can short-circuit (e.g. a cache hit) before mw2 ever runs.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
