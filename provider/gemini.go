package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the Google GenAI SDK.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	genConfig *genai.GenerateContentConfig
}

// NewGeminiProvider creates a Gemini backend. baseURL is optional and only
// needed for proxies; the model defaults to gemini-2.0-flash.
func NewGeminiProvider(baseURL, apiKey, model string, maxOutputTokens int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  model,
		genConfig: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.7),
			MaxOutputTokens: int32(maxOutputTokens),
		},
	}, nil
}

// Complete implements model.Provider.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), p.genConfig)
	if err != nil {
		return "", fmt.Errorf("Gemini request failed: %w", err)
	}
	return resp.Text(), nil
}

// GetModel implements model.Provider.
func (p *GeminiProvider) GetModel() string {
	return p.model
}

// Ping implements model.Provider by fetching the configured model's metadata.
func (p *GeminiProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.Get(ctx, p.model, nil); err != nil {
		return fmt.Errorf("Gemini ping failed: %w", err)
	}
	return nil
}
