// Package mock implements a mock Provider for testing.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aerodesk/flightagent/providers"
)

// ErrNoResponse is returned when the mock runs out of configured responses.
var ErrNoResponse = errors.New("mock: no response configured")

// Provider implements providers.Provider for testing. Responses are
// consumed in FIFO order, one per Complete call.
type Provider struct {
	mu        sync.Mutex
	responses []*providers.CompletionResponse
	errs      []error
	requests  []providers.CompletionRequest
	callCount int
}

// New creates a new mock provider.
func New() *Provider {
	return &Provider{}
}

// WithResponse appends a mock completion response.
func (m *Provider) WithResponse(content string, toolCalls []providers.ToolCall) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp := &providers.CompletionResponse{
		ID:           fmt.Sprintf("mock-resp-%d", len(m.responses)+1),
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: providers.FinishReasonStop,
		Model:        "mock-model",
		Created:      time.Now(),
		Usage: providers.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}
	if len(toolCalls) > 0 {
		resp.FinishReason = providers.FinishReasonToolCalls
	}

	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, nil)
	return m
}

// WithError appends a failing call, for exercising fallback paths.
func (m *Provider) WithError(err error) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

// Name returns the provider name.
func (m *Provider) Name() string {
	return "mock"
}

// Complete returns the next configured mock response.
func (m *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.responses) == 0 {
		return nil, ErrNoResponse
	}

	resp := m.responses[0]
	err := m.errs[0]
	m.responses = m.responses[1:]
	m.errs = m.errs[1:]
	m.requests = append(m.requests, req)
	m.callCount++

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CallCount returns the number of times Complete was called.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns the requests seen so far, in order.
func (m *Provider) Requests() []providers.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]providers.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
