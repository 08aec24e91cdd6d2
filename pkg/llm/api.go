// Package llm provides the interface and composition primitives for
// text-generation service clients.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens caps completion length for planning responses.
	DefaultMaxTokens = 4096

	// TemperatureDefault balances focus and variety for planning tasks.
	TemperatureDefault = 0.3
)

// CompletionMessage represents one message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Response text
	StopReason string // Why the response stopped, when the provider reports it
}

// Client defines the interface for text-generation service interactions.
// Implementations must fail explicitly when no backing model is available or
// when the returned text is blank after trimming; a blank completion is never
// a valid result.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// ModelName returns the model identifier for this client.
	ModelName() string
}

// NewCompletionRequest creates a completion request with default limits.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// PromptText flattens request messages into a single prompt string. Used for
// cache fingerprinting and token estimation.
func (r *CompletionRequest) PromptText() string {
	var b strings.Builder
	for i := range r.Messages {
		b.WriteString(string(r.Messages[i].Role))
		b.WriteString(": ")
		b.WriteString(r.Messages[i].Content)
		b.WriteString("\n")
	}
	return b.String()
}

// Validate checks a request before sending it to a provider.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("validation failed: message list cannot be empty")
	}
	for i := range r.Messages {
		if strings.TrimSpace(r.Messages[i].Content) == "" && r.Messages[i].Role != RoleUser {
			return fmt.Errorf("validation failed: blank %s message at index %d", r.Messages[i].Role, i)
		}
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("validation failed: max tokens must be positive")
	}
	return nil
}
