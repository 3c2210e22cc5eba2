package provider

import (
	"context"
	"fmt"

	"groupchat/ollama"
)

// OllamaProvider wraps ollama.Client to implement model.Provider.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// Parameters:
//   - baseURL: The Ollama server URL (e.g., "http://localhost:11434").
//     If empty, defaults to "http://localhost:11434".
//   - model: The model name to use (e.g., "llama3.1:latest").
//     If empty, defaults to "llama3.1:latest".
//
// Returns an error if the baseURL is invalid.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client: client,
	}, nil
}

// Complete implements model.Provider (direct passthrough).
func (p *OllamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := p.client.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("Ollama request failed: %w", err)
	}
	return text, nil
}

// GetModel implements model.Provider (direct passthrough).
func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// Ping implements model.Provider (direct passthrough).
//
// Returns an error if the server is not reachable or times out.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
