package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagMiddleware appends a tag to response content so ordering is observable.
func tagMiddleware(tag string) Middleware {
	return func(next Client) Client {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return CompletionResponse{}, err
				}
				resp.Content += tag
				return resp, nil
			},
			next.ModelName,
		)
	}
}

func TestChainOrdering(t *testing.T) {
	base := NewMockClientWithContent("base")
	client := Chain(base, tagMiddleware("-outer"), tagMiddleware("-inner"))

	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{
		NewUserMessage("hello"),
	}))
	require.NoError(t, err)

	// Inner middleware appends first, outer appends last.
	assert.Equal(t, "base-inner-outer", resp.Content)
	assert.Equal(t, "mock-model", client.ModelName())
}

func TestChainWithNoMiddleware(t *testing.T) {
	base := NewMockClientWithContent("untouched")
	client := Chain(base)

	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{
		NewUserMessage("hi"),
	}))
	require.NoError(t, err)
	assert.Equal(t, "untouched", resp.Content)
}

func TestRequestValidate(t *testing.T) {
	req := NewCompletionRequest(nil)
	assert.Error(t, req.Validate())

	req = NewCompletionRequest([]CompletionMessage{NewUserMessage("text")})
	assert.NoError(t, req.Validate())

	req.MaxTokens = 0
	assert.Error(t, req.Validate())
}

func TestPromptTextIsDeterministic(t *testing.T) {
	req := NewCompletionRequest([]CompletionMessage{
		NewSystemMessage("be terse"),
		NewUserMessage("plan this"),
	})
	assert.Equal(t, req.PromptText(), req.PromptText())
	assert.Contains(t, req.PromptText(), "system: be terse")
	assert.Contains(t, req.PromptText(), "user: plan this")
}
