// Package provider turns conversation history into AI participant replies.
//
// Backends (Gemini, Ollama, OpenAI, OpenRouter, Anthropic) implement
// model.Provider: one prompt in, one reply out. Two model.Generator
// implementations sit on top of them:
//
//   - RoleGenerator builds the role prompt, charges the requester's rate
//     limit and calls a backend directly.
//   - QueuedGenerator writes the prompt as a GenerationJob and polls for the
//     result a worker writes back.
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:   provider.ProviderTypeGemini,
//	    Model:  "gemini-2.0-flash",
//	    APIKey: os.Getenv("GEMINI_API_KEY"),
//	})
//	if err != nil {
//	    // handle error
//	}
//	gen := provider.NewRoleGenerator(p, limiter)
//	text, err := gen.Generate(ctx, req)
package provider

// Note: The Provider interface is defined in the model package
// (model/provider.go) to avoid import cycles. This package implements model.Provider.

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeGemini     ProviderType = "gemini"
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
	// MaxOutputTokens caps reply length. Zero picks the backend default.
	MaxOutputTokens int
}

const defaultMaxOutputTokens = 1024
