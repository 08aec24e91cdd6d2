package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient provides a controllable implementation of Client for testing.
// Errors are consumed before responses, so interleaving both scripts
// failure-then-success sequences.
type MockClient struct {
	mu            sync.Mutex
	responses     []CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	calls         int
}

// NewMockClient creates a mock client with predefined responses and errors.
func NewMockClient(responses []CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		responses: responses,
		errors:    errors,
	}
}

// NewMockClientWithContent creates a mock client returning the given texts in order.
func NewMockClientWithContent(contents ...string) *MockClient {
	responses := make([]CompletionResponse, len(contents))
	for i, c := range contents {
		responses[i] = CompletionResponse{Content: c, StopReason: "end_turn"}
	}
	return NewMockClient(responses, nil)
}

// Complete returns the next predefined error or response.
func (m *MockClient) Complete(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return CompletionResponse{}, err
	}

	if m.responseIndex >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// ModelName identifies the mock model.
func (m *MockClient) ModelName() string {
	return "mock-model"
}

// Calls returns how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
