package llm

import (
	"context"
	"fmt"
)

// MockClient provides a controllable implementation of CompletionClient for
// testing. Responses and errors are consumed in order; a ScriptFn, when set,
// overrides the canned lists entirely.
type MockClient struct {
	responses     []CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	requests      []CompletionRequest

	// ScriptFn, when non-nil, computes the response from the request.
	ScriptFn func(req CompletionRequest) (CompletionResponse, error)
}

// NewMockClient creates a new mock client with predefined responses.
func NewMockClient(responses []CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		responses: responses,
		errors:    errors,
	}
}

// Complete returns the next predefined response or error and records the request.
func (m *MockClient) Complete(_ context.Context, in CompletionRequest) (CompletionResponse, error) {
	m.requests = append(m.requests, in)

	if m.ScriptFn != nil {
		return m.ScriptFn(in)
	}

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
	return "mock"
}

// Requests returns every request the mock has received, in order.
func (m *MockClient) Requests() []CompletionRequest {
	return m.requests
}

// CallCount returns how many Complete calls the mock has received.
func (m *MockClient) CallCount() int {
	return len(m.requests)
}
