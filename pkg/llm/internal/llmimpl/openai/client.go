// Package openai implements the generation client against the OpenAI
// Responses API.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"planner/pkg/llm"
	"planner/pkg/llmerrors"
)

// Client wraps the official OpenAI SDK behind the llm.Client interface.
type Client struct {
	client openai.Client
	model  string
}

// New creates a raw OpenAI client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements llm.Client. The Responses API takes a single input
// string, so conversation roles are flattened with labeled prefixes.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	var input strings.Builder
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&input, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&input, "Assistant: %s\n\n", msg.Content)
		default:
			input.WriteString(msg.Content)
		}
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeService, "ai service returned an empty response")
	}

	content := resp.OutputText()
	if strings.TrimSpace(content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeService, "ai service returned a blank completion")
	}

	return llm.CompletionResponse{Content: content}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}
