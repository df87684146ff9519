package engine

import (
	"context"
	"sync"

	"github.com/Veraticus/pantry/internal/model"
)

// MockMatcher is a scripted semantic matcher for tests.
type MockMatcher struct {
	Responses map[string][]string
	Err       error
	calls     []string
	mu        sync.Mutex
}

// NewMockMatcher creates a matcher that answers from responses, keyed by raw name.
func NewMockMatcher(responses map[string][]string) *MockMatcher {
	if responses == nil {
		responses = make(map[string][]string)
	}
	return &MockMatcher{Responses: responses}
}

// MatchProducts returns the scripted IDs for rawName, or Err when set.
func (m *MockMatcher) MatchProducts(_ context.Context, rawName string, _ []model.Product) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, rawName)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Responses[rawName], nil
}

// Calls returns the raw names the matcher was asked about, in order.
func (m *MockMatcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the matcher was consulted.
func (m *MockMatcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
