// Package factory assembles a generation client for the configured provider
// and wraps it in the resilience middleware chain.
package factory

import (
	"context"
	"fmt"

	"planner/pkg/config"
	"planner/pkg/llm"
	"planner/pkg/llm/internal/llmimpl/anthropic"
	"planner/pkg/llm/internal/llmimpl/google"
	"planner/pkg/llm/internal/llmimpl/ollama"
	"planner/pkg/llm/internal/llmimpl/openai"
	"planner/pkg/middleware/cache"
	"planner/pkg/middleware/metrics"
	"planner/pkg/middleware/ratelimit"
	"planner/pkg/middleware/retry"
	"planner/pkg/tokens"
)

// retryOpID keys the retry executor's counter for generation requests.
const retryOpID = "generation-request"

// Components bundles the composed client with the resilience primitives
// behind it, so callers can inspect stats or reset state.
type Components struct {
	Client   llm.Client
	Cache    *cache.Cache[llm.CompletionResponse]
	Limiter  *ratelimit.Limiter
	Executor *retry.Executor
	Recorder metrics.Recorder
	Counter  *tokens.Counter
}

// NewRawClient creates the provider client named by the configuration,
// without middleware. The API key is resolved through the vault with
// environment fallback; Ollama needs none.
func NewRawClient(cfg *config.Config, vault *config.Vault) (llm.Client, error) {
	var apiKey string
	if name := cfg.APIKeyName(); name != "" {
		key, err := vault.Get(name)
		if err != nil {
			return nil, fmt.Errorf("provider %s needs an API key: %w", cfg.Generation.Provider, err)
		}
		apiKey = key
	}

	switch cfg.Generation.Provider {
	case config.ProviderAnthropic:
		return anthropic.New(apiKey, cfg.Generation.Model), nil
	case config.ProviderOpenAI:
		return openai.New(apiKey, cfg.Generation.Model), nil
	case config.ProviderGoogle:
		return google.New(apiKey, cfg.Generation.Model), nil
	case config.ProviderOllama:
		return ollama.New(cfg.Generation.OllamaHost, cfg.Generation.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
}

// Build assembles the full client stack. Outermost to innermost: response
// cache, rate limiter, retry with backoff, per-attempt timeout, metrics
// observation, provider transport. Cached responses therefore consume no
// rate-limit budget, and each physical attempt is observed individually.
// The step function labels request metrics with the current workflow step
// and may be nil.
func Build(cfg *config.Config, vault *config.Vault, recorder metrics.Recorder, step func() string) (*Components, error) {
	raw, err := NewRawClient(cfg, vault)
	if err != nil {
		return nil, err
	}
	return Compose(cfg, raw, recorder, step), nil
}

// Compose wraps an existing transport client in the middleware chain. Split
// out from Build so tests can compose over a mock transport.
func Compose(cfg *config.Config, raw llm.Client, recorder metrics.Recorder, step func() string) *Components {
	counter, err := tokens.NewCounter()
	if err != nil {
		// Token counting degrades to character estimates.
		counter = nil
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}

	components := &Components{
		Cache:    cache.New[llm.CompletionResponse](cfg.Resilience.CacheTTL, cfg.Resilience.CacheMaxEntries),
		Limiter:  ratelimit.NewLimiter(cfg.Resilience.RateLimitWindow, cfg.Resilience.RateLimitMax),
		Executor: retry.NewExecutor(cfg.Resilience.RetryMaxAttempts, cfg.Resilience.RetryBaseDelay),
		Recorder: recorder,
		Counter:  counter,
	}

	timeout := cfg.Resilience.RequestTimeout
	timeoutMiddleware := func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				return retry.WithTimeout(ctx, timeout, func(ctx context.Context) (llm.CompletionResponse, error) {
					return next.Complete(ctx, req)
				}, nil)
			},
			next.ModelName,
		)
	}

	components.Client = llm.Chain(raw,
		cache.Middleware(components.Cache, func(hit bool) { recorder.IncCacheEvent(hit) }),
		ratelimit.Middleware(components.Limiter),
		retry.Middleware(components.Executor, retryOpID),
		timeoutMiddleware,
		metrics.Middleware(recorder, counter, step),
	)
	return components
}
