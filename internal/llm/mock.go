package llm

import (
	"context"
	"fmt"
)

// MockClient is a deterministic, offline Client used by tests and the
// mock/offline wiki-generation path. GenerateFunc, when set, overrides the
// default canned response.
type MockClient struct {
	GenerateFunc func(ctx context.Context, messages []Message, params Params) (Result, error)
	calls        int
}

// NewMockClient builds a MockClient with the default canned response.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Calls returns the number of Generate invocations observed so far.
func (m *MockClient) Calls() int { return m.calls }

func (m *MockClient) Generate(ctx context.Context, messages []Message, params Params) (Result, error) {
	m.calls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages, params)
	}
	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return Result{Text: fmt.Sprintf("mock response to: %s", last)}, nil
}

func (m *MockClient) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	tokens := make(chan Token, 1)
	errs := make(chan error, 1)
	result, err := m.Generate(ctx, messages, params)
	if err != nil {
		errs <- err
	} else {
		tokens <- Token{Text: result.Text, Done: true}
	}
	close(tokens)
	close(errs)
	return tokens, errs
}
