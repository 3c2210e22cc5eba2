package provider

import (
	"fmt"
	"strings"

	"groupchat/model"
)

// NewProvider creates a provider based on configuration.
//
// Returns an error if the provider type is unknown or the backend
// constructor fails (missing API key, invalid URL).
//
// Example:
//
//	cfg := provider.Config{
//	    Type:    provider.ProviderTypeOllama,
//	    BaseURL: "http://localhost:11434",
//	    Model:   "llama3.1",
//	}
//	p, err := provider.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeGemini:
		return asProvider(NewGeminiProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxOutputTokens))
	case ProviderTypeOllama:
		return asProvider(NewOllamaProvider(cfg.BaseURL, cfg.Model))
	case ProviderTypeOpenRouter:
		return asProvider(NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case ProviderTypeOpenAI:
		return asProvider(NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case ProviderTypeAnthropic:
		return asProvider(NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxOutputTokens))
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// asProvider keeps a failed constructor's typed nil out of the interface.
func asProvider[P model.Provider](p P, err error) (model.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MapProviderIDToType converts a config provider ID to a ProviderType.
//
// "google" is accepted as an alias for Gemini. Unknown IDs are returned as-is
// so the factory reports them.
func MapProviderIDToType(id string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "gemini", "google":
		return ProviderTypeGemini
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	default:
		return ProviderType(id)
	}
}
