package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockResponse is one scripted provider reply.
type MockResponse struct {
	Content string
	Usage   *Usage
	Error   error
	// Panic makes Complete panic with this value instead of returning.
	Panic any
}

// MockProvider replays scripted responses and records every request.
// Responses are returned in order; once exhausted the last one repeats.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	callIndex int
	calls     []CompletionRequest
}

// NewMockProvider creates a mock with a sequence of responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	if len(m.responses) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("mock: no responses configured")
	}
	idx := m.callIndex
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.callIndex++
	}
	r := m.responses[idx]
	m.mu.Unlock()

	if r.Panic != nil {
		panic(r.Panic)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Error != nil {
		return nil, r.Error
	}
	return &CompletionResponse{
		Content:  r.Content,
		Usage:    r.Usage,
		Model:    req.Model,
		Provider: m.Name(),
	}, nil
}

// Calls returns a copy of every request received.
func (m *MockProvider) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Complete invocations.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
