// Package anthropic implements the generation client against the Anthropic
// API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"planner/pkg/llm"
	"planner/pkg/llmerrors"
)

// Client wraps the Anthropic SDK behind the llm.Client interface. Middleware
// is applied at a higher level; this is the raw transport.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a raw Anthropic client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// prepare extracts system messages into the system parameter and merges
// consecutive same-role messages; the API requires strict user/assistant
// alternation starting and ending with user.
func prepare(messages []llm.CompletionMessage) (systemPrompt string, merged []llm.CompletionMessage, err error) {
	var systemParts []string
	var userParts []string

	flush := func() {
		if len(userParts) > 0 {
			merged = append(merged, llm.CompletionMessage{
				Role:    llm.RoleUser,
				Content: strings.Join(userParts, "\n\n"),
			})
			userParts = nil
		}
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case llm.RoleAssistant:
			flush()
			if len(merged) > 0 && merged[len(merged)-1].Role == llm.RoleAssistant {
				merged[len(merged)-1].Content += "\n\n" + msg.Content
				continue
			}
			merged = append(merged, *msg)
		default:
			userParts = append(userParts, msg.Content)
		}
	}
	flush()

	if len(merged) == 0 {
		return "", nil, fmt.Errorf("validation failed: no user content in request")
	}
	if merged[0].Role != llm.RoleUser || merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("validation failed: conversation must start and end with a user message")
	}
	return strings.Join(systemParts, "\n\n"), merged, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, prepared, err := prepare(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeValidation, err, "request rejected before send")
	}

	messages := make([]anthropic.MessageParam, 0, len(prepared))
	for i := range prepared {
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(prepared[i].Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prepared[i].Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeService, "ai service returned an empty response")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeService, "ai service returned a blank completion")
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
	}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return string(c.model)
}
