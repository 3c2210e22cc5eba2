package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"groupchat/metrics"
	"groupchat/model"
	"groupchat/ratelimit"
)

// RoleGenerator answers generation requests by calling a backend directly.
type RoleGenerator struct {
	provider model.Provider
	limiter  ratelimit.Limiter
	logger   zerolog.Logger
}

type GeneratorOption func(*RoleGenerator)

func WithGeneratorLogger(l zerolog.Logger) GeneratorOption {
	return func(g *RoleGenerator) { g.logger = l }
}

// NewRoleGenerator returns a generator backed by p. A nil limiter means no
// rate limiting; a nil provider fails every request as unavailable.
func NewRoleGenerator(p model.Provider, limiter ratelimit.Limiter, opts ...GeneratorOption) *RoleGenerator {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	g := &RoleGenerator{provider: p, limiter: limiter, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements model.Generator.
func (g *RoleGenerator) Generate(ctx context.Context, req model.GenerationRequest) (string, error) {
	if err := CheckRequester(ctx, g.limiter, req.RequestedBy, "direct"); err != nil {
		return "", model.NewGenerationError(req.Role, err)
	}

	text, err := Complete(ctx, g.provider, req.Role, BuildPrompt(req.Role, req.History))
	if err != nil {
		g.logger.Warn().Err(err).Str("role", string(req.Role)).Str("conversation", req.ConversationID).Msg("generation failed")
		return "", err
	}
	return text, nil
}

// CheckRequester refuses anonymous requests and charges the requester's rate
// limit. scope labels the rate-limit metric.
func CheckRequester(ctx context.Context, limiter ratelimit.Limiter, requestedBy, scope string) error {
	if requestedBy == "" {
		return model.ErrUnauthenticated
	}
	allowed, err := limiter.Allow(ctx, requestedBy)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		metrics.RateLimitHits.WithLabelValues(scope).Inc()
		return model.ErrRateLimited
	}
	return nil
}

// Complete sends a ready prompt to p and normalizes the outcome: the reply is
// trimmed, an empty reply is an error and every failure is a
// *model.GenerationError.
func Complete(ctx context.Context, p model.Provider, role model.Role, prompt string) (string, error) {
	if p == nil {
		metrics.GenerationFailures.WithLabelValues(model.RoleLabel(role), causeLabel(model.ErrBackendUnavailable)).Inc()
		return "", model.NewGenerationError(role, model.ErrBackendUnavailable)
	}

	start := time.Now()
	text, err := p.Complete(ctx, prompt)
	metrics.GenerationDuration.WithLabelValues(model.RoleLabel(role)).Observe(time.Since(start).Seconds())

	if err == nil && strings.TrimSpace(text) == "" {
		err = model.ErrEmptyResponse
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", model.ErrTimeout, err)
		}
		metrics.GenerationFailures.WithLabelValues(model.RoleLabel(role), causeLabel(err)).Inc()
		return "", model.NewGenerationError(role, err)
	}
	return strings.TrimSpace(text), nil
}

func causeLabel(err error) string {
	switch {
	case errors.Is(err, model.ErrTimeout):
		return "timeout"
	case errors.Is(err, model.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, model.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, model.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, model.ErrEmptyResponse):
		return "empty_response"
	default:
		return "upstream"
	}
}
