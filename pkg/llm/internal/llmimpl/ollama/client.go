// Package ollama implements the generation client against a local Ollama
// server.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"planner/pkg/llm"
	"planner/pkg/llmerrors"
)

// DefaultHost is the conventional local Ollama endpoint.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API behind the llm.Client interface.
type Client struct {
	client *api.Client
	model  string
}

// New creates a raw Ollama client for the given host and model. An empty or
// invalid host falls back to the local default.
func New(hostURL, model string) *Client {
	if hostURL == "" {
		hostURL = DefaultHost
	}
	parsed, err := url.Parse(hostURL)
	if err != nil {
		parsed, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		messages = append(messages, api.Message{
			Role:    string(in.Messages[i].Role),
			Content: in.Messages[i].Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		// A refused connection usually means the server is not running,
		// which reads as "no model available" to the pipeline.
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}

	if strings.TrimSpace(response.Message.Content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeService, "no model produced output for this request")
	}

	stopReason := response.DoneReason
	if stopReason == "" && response.Done {
		stopReason = "stop"
	}
	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: stopReason,
	}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}
