package model

import (
	"context"
	"errors"
	"fmt"
)

// Provider abstracts text-completion backends (Gemini, Ollama, OpenAI,
// OpenRouter, Anthropic).
//
// This interface is defined in the model package (not provider package) to
// avoid import cycles: provider implementations import model, and the worker
// and lifecycle packages use Provider without importing each backend.
type Provider interface {
	// Complete sends a single prompt and returns the full reply text.
	Complete(ctx context.Context, prompt string) (string, error)

	// GetModel returns the model name used for API calls.
	GetModel() string

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}

// GenerationRequest asks for one AI reply on behalf of a participant.
type GenerationRequest struct {
	ConversationID string
	Role           Role
	// History is the newline-joined, formatted conversation snapshot.
	History string
	// RequestedBy is the human whose message triggered the reply. Rate limits
	// are charged to this user.
	RequestedBy string
}

// Generator produces reply text for a participant. Implementations may be
// direct backend calls or a queued request polled for a result.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerationRequest) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	return f(ctx, req)
}

var (
	ErrTimeout            = errors.New("generation timed out")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrUnauthenticated    = errors.New("requester not authenticated")
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	ErrEmptyResponse      = errors.New("empty response")
)

// GenerationError wraps any failure to produce a reply.
type GenerationError struct {
	Role  Role
	Cause error
}

func (e *GenerationError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("generation failed: %v", e.Cause)
	}
	return fmt.Sprintf("generation failed for %s: %v", e.Role, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// NewGenerationError wraps cause unless it already is a *GenerationError.
func NewGenerationError(role Role, cause error) error {
	var ge *GenerationError
	if errors.As(cause, &ge) {
		return cause
	}
	return &GenerationError{Role: role, Cause: cause}
}
