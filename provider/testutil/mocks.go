package testutil

import (
	"context"
	"sync"

	"groupchat/model"
)

// MockProvider implements model.Provider for testing
type MockProvider struct {
	// Configurable responses
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	PingFunc     func(ctx context.Context) error

	mu      sync.Mutex
	prompts []string

	// State
	currentModel string
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		currentModel: modelName,
	}
	mock.CompleteFunc = mock.defaultComplete
	mock.PingFunc = mock.defaultPing
	return mock
}

func (m *MockProvider) defaultComplete(ctx context.Context, prompt string) (string, error) {
	return "Mock response", nil
}

func (m *MockProvider) defaultPing(ctx context.Context) error {
	return nil
}

func (m *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, prompt)
}

func (m *MockProvider) GetModel() string {
	return m.currentModel
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}

// Prompts returns every prompt received so far.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// MockGenerator implements model.Generator for testing
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req model.GenerationRequest) (string, error)

	mu       sync.Mutex
	requests []model.GenerationRequest
}

// NewMockGenerator returns a generator that always replies with text.
func NewMockGenerator(text string) *MockGenerator {
	return &MockGenerator{
		GenerateFunc: func(context.Context, model.GenerationRequest) (string, error) {
			return text, nil
		},
	}
}

// NewFailingGenerator returns a generator that always fails with err.
func NewFailingGenerator(err error) *MockGenerator {
	return &MockGenerator{
		GenerateFunc: func(_ context.Context, req model.GenerationRequest) (string, error) {
			return "", model.NewGenerationError(req.Role, err)
		},
	}
}

func (g *MockGenerator) Generate(ctx context.Context, req model.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.GenerateFunc(ctx, req)
}

// Requests returns every request received so far.
func (g *MockGenerator) Requests() []model.GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.GenerationRequest(nil), g.requests...)
}
