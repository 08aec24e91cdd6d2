package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/pkg/config"
	"planner/pkg/llm"
	"planner/pkg/llmerrors"
)

func TestComposeServesRepeatsFromCache(t *testing.T) {
	cfg := config.Default()
	mock := llm.NewMockClientWithContent("answer")
	components := Compose(cfg, mock, nil, nil)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("prompt")})
	first, err := components.Client.Complete(context.Background(), req)
	require.NoError(t, err)
	second, err := components.Client.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, mock.Calls(), "repeat request must be a cache hit")
	assert.Equal(t, 1, components.Cache.Size())
}

func TestComposeDeniesOverRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Resilience.RateLimitMax = 1
	cfg.Resilience.RetryMaxAttempts = 1

	mock := llm.NewMockClientWithContent("one", "two")
	components := Compose(cfg, mock, nil, nil)

	ctx := context.Background()
	_, err := components.Client.Complete(ctx, llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("first")}))
	require.NoError(t, err)

	_, err = components.Client.Complete(ctx, llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("second")}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeRateLimit))
}

func TestNewRawClientRequiresAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Provider = config.ProviderOpenAI
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewRawClient(cfg, config.NewVault())
	assert.Error(t, err, "missing key must fail fast")

	cfg.Generation.Provider = config.ProviderOllama
	client, err := NewRawClient(cfg, config.NewVault())
	require.NoError(t, err, "local provider needs no key")
	assert.Equal(t, cfg.Generation.Model, client.ModelName())
}
