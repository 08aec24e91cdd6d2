// Package google implements the generation client against the Gemini API.
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"planner/pkg/llm"
	"planner/pkg/llmerrors"
)

// Client wraps the Gemini SDK behind the llm.Client interface. The underlying
// client is created lazily on first use because construction needs a context.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
}

// New creates a raw Gemini client for the given model.
func New(apiKey, model string) *Client {
	return &Client{apiKey: apiKey, model: model}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if c.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeService, err, "failed to create ai service client")
		}
		c.client = client
	}

	contents, systemInstruction := convertMessages(in.Messages)
	if len(contents) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeValidation, "validation failed: no user content in request")
	}

	//nolint:gosec // Token limits are far below int32 range.
	maxTokens := int32(in.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(fmt.Errorf("ai service call failed: %w", err))
	}
	if result == nil || strings.TrimSpace(result.Text()) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeService, "ai service returned a blank completion")
	}

	return llm.CompletionResponse{Content: result.Text()}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}

// convertMessages maps conversation messages to Gemini contents, pulling
// system messages out into the system instruction.
func convertMessages(messages []llm.CompletionMessage) (contents []*genai.Content, systemInstruction string) {
	var systemParts []string
	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return contents, strings.Join(systemParts, "\n\n")
}
