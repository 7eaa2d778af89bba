package llm

import (
	"context"
	"sync"
)

// MockProvider returns scripted responses, used by tests and local runs
// without an API key. GenerateFunc, when set, takes precedence over
// Responses. Safe for concurrent use.
type MockProvider struct {
	GenerateFunc func(ctx context.Context, messages []Message) (string, error)
	Responses    []string

	mu    sync.Mutex
	calls [][]Message
	next  int
}

func (m *MockProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	var scripted string
	if m.GenerateFunc == nil && m.next < len(m.Responses) {
		scripted = m.Responses[m.next]
		m.next++
	}
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages)
	}
	return scripted, nil
}

// Calls returns a copy of every message list the mock has received.
func (m *MockProvider) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
