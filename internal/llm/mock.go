package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient replays canned responses in order and records every prompt it
// receives. Once the queue is exhausted the last response repeats.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	next      int
	prompts   []string

	// Respond, when set, overrides the queue.
	Respond func(prompt string) (string, error)
}

// NewMockClient creates a mock client returning responses in order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// Complete implements the Client interface
func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	if m.Respond != nil {
		return m.Respond(prompt)
	}
	if len(m.responses) == 0 {
		return "", fmt.Errorf("%w: mock client has no responses", ErrProcessFailed)
	}

	i := m.next
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	} else {
		m.next++
	}
	return m.responses[i], nil
}

// Prompts returns every prompt received so far.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Calls returns the number of Complete calls.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
