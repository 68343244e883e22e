// Package testutil provides test utilities for the llm package.
// It includes mock implementations for testing LLM client interactions.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/agentbus/llm"
)

// MockLLMClient is a thread-safe mock LLM client for testing.
// It captures the requests passed to Complete() and returns configured
// responses in sequence.
//
// Usage:
//
//	// Single response mock
//	mock := &MockLLMClient{
//	    Responses: []*llm.Response{
//	        {Content: `{"result": "success"}`, Model: "test-model"},
//	    },
//	}
//
//	// Tool-call response
//	mock := &MockLLMClient{
//	    Responses: []*llm.Response{
//	        {ToolCalls: []llm.ToolCall{{Name: "update_dialogue_parameters", Arguments: []byte(`{}`)}}},
//	    },
//	}
//
//	// Error response
//	mock := &MockLLMClient{
//	    Err: errors.New("connection failed"),
//	}
type MockLLMClient struct {
	mu               sync.Mutex
	capturedRequests []llm.Request
	Responses        []*llm.Response // Responses to return in sequence
	Err              error           // Error to return (takes precedence over Responses)

	// Embeddings returned by Embed, one per input. When nil, Embed
	// returns EmbedErr or a fixed small vector per input.
	Embeddings [][]float32
	EmbedErr   error

	callCount     int
	responseIndex int
}

// Complete returns the next response from Responses, or Err if set.
// The request is captured for verification in tests.
func (m *MockLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.capturedRequests = append(m.capturedRequests, req)
	m.callCount++

	if m.Err != nil {
		return nil, m.Err
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	// Default response if no responses configured
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// Embed returns the configured embeddings, or a unit vector per input.
func (m *MockLLMClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	if m.Embeddings != nil {
		return m.Embeddings, nil
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

// EmbedOne returns the first configured embedding.
func (m *MockLLMClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// SupportsEmbedding reports true unless EmbedErr is configured.
func (m *MockLLMClient) SupportsEmbedding() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EmbedErr == nil
}

// CapturedRequests returns the requests passed to Complete(), in order.
func (m *MockLLMClient) CapturedRequests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.capturedRequests))
	copy(out, m.capturedRequests)
	return out
}

// GetCallCount returns the number of times Complete() was called.
func (m *MockLLMClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset resets the mock's state (call count, captures, and response index).
// Useful for reusing the same mock instance across multiple test cases.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.responseIndex = 0
	m.capturedRequests = nil
}
