// Package lifecycle runs AI participants' replies to a human message: decide,
// show a typing placeholder, generate, then either replace the placeholder
// with the reply or rewrite it with fallback text.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"groupchat/metrics"
	"groupchat/model"
	"groupchat/provider"
)

// Status is how a single participant run ended.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusResponded Status = "responded"
	StatusFallback  Status = "fallback"
	StatusFailed    Status = "failed"
)

// Outcome reports one participant run.
type Outcome struct {
	Role          model.Role     `json:"role"`
	Status        Status         `json:"status"`
	Decision      model.Decision `json:"decision"`
	PlaceholderID string         `json:"placeholderId,omitempty"`
	// MessageID is the final reply, or the placeholder rewritten as fallback.
	MessageID string `json:"messageId,omitempty"`
	Err       error  `json:"-"`
}

// Decider is satisfied by *intervention.Engine.
type Decider interface {
	Decide(recent []model.Message, p model.AIParticipant, latest string) model.Decision
}

// MessageWriter is the part of the message store a run writes to.
type MessageWriter interface {
	Append(ctx context.Context, msg model.Message) (model.Message, error)
	Update(ctx context.Context, conversationID, messageID string, patch model.MessagePatch) (model.Message, error)
}

// RunInput is one participant's view of a send event.
type RunInput struct {
	ConversationID string
	Participant    model.AIParticipant
	// History is the snapshot taken when the human message was stored,
	// oldest first, ending with that message. Decisions see all of it.
	History []model.Message
	// PromptLimit is how many of the newest History messages the generator
	// sees. Zero means all.
	PromptLimit int
	RequestedBy string
}

// Controller runs one AI participant through decide, placeholder, generate
// and resolve.
type Controller struct {
	decider   Decider
	store     MessageWriter
	generator model.Generator
	timeout   time.Duration
	logger    zerolog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithTimeout bounds each generation call. Zero disables the bound.
func WithTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.timeout = d }
}

// WithLogger sets the logger for run outcomes.
func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller with a 30s generation timeout. A nil
// generator makes every responding run fall back.
func NewController(decider Decider, store MessageWriter, generator model.Generator, opts ...ControllerOption) *Controller {
	c := &Controller{
		decider:   decider,
		store:     store,
		generator: generator,
		timeout:   30 * time.Second,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run carries one participant through the reply lifecycle. Failures are
// reported in the Outcome and never returned to the sender. Writes are
// detached from ctx's cancellation so a caller that goes away does not leave
// a placeholder behind.
func (c *Controller) Run(ctx context.Context, in RunInput) Outcome {
	p := in.Participant.Normalize()

	var latest string
	if n := len(in.History); n > 0 {
		latest = in.History[n-1].Content
	}

	d := c.decider.Decide(in.History, p, latest)
	out := Outcome{Role: p.Role, Decision: d}
	if !d.ShouldRespond {
		out.Status = StatusSkipped
		return c.finish(in, out)
	}

	ctx = context.WithoutCancel(ctx)
	correlationID := uuid.NewString()

	placeholder, err := c.store.Append(ctx, model.Message{
		ConversationID: in.ConversationID,
		Kind:           model.KindAI,
		Content:        model.PlaceholderContent,
		Sender:         string(p.Role),
		SenderName:     p.SenderName(),
		IsPlaceholder:  true,
		CorrelationID:  correlationID,
	})
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("failed to write placeholder: %w", err)
		return c.finish(in, out)
	}
	out.PlaceholderID = placeholder.ID

	text, genErr := c.generate(ctx, in, p.Role)
	if genErr != nil {
		fallback := FallbackResponse(p.Role, d.Reason, lastHumanContent(in.History))
		if _, err := c.store.Update(ctx, in.ConversationID, placeholder.ID, model.FallbackPatch(fallback)); err != nil {
			out.Status = StatusFailed
			out.Err = errors.Join(genErr, fmt.Errorf("failed to write fallback: %w", err))
			return c.finish(in, out)
		}
		out.Status = StatusFallback
		out.MessageID = placeholder.ID
		out.Err = genErr
		return c.finish(in, out)
	}

	if _, err := c.store.Update(ctx, in.ConversationID, placeholder.ID, model.SuppressPatch()); err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("failed to hide placeholder: %w", err)
		return c.finish(in, out)
	}

	final, err := c.store.Append(ctx, model.Message{
		ConversationID:     in.ConversationID,
		Kind:               model.KindAI,
		Content:            text,
		Sender:             string(p.Role),
		SenderName:         p.SenderName(),
		CorrelationID:      correlationID,
		InterventionReason: d.Reason,
	})
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("failed to write reply: %w", err)
		return c.finish(in, out)
	}

	out.Status = StatusResponded
	out.MessageID = final.ID
	return c.finish(in, out)
}

func (c *Controller) generate(ctx context.Context, in RunInput, role model.Role) (string, error) {
	if c.generator == nil {
		return "", model.NewGenerationError(role, model.ErrBackendUnavailable)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.generator.Generate(ctx, model.GenerationRequest{
		ConversationID: in.ConversationID,
		Role:           role,
		History:        provider.FormatHistory(promptWindow(in.History, in.PromptLimit)),
		RequestedBy:    in.RequestedBy,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, model.ErrTimeout) {
			err = fmt.Errorf("%w: %w", model.ErrTimeout, err)
		}
		return "", model.NewGenerationError(role, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", model.NewGenerationError(role, model.ErrEmptyResponse)
	}
	return text, nil
}

func promptWindow(history []model.Message, limit int) []model.Message {
	if limit > 0 && len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}

func (c *Controller) finish(in RunInput, out Outcome) Outcome {
	metrics.LifecycleOutcomes.WithLabelValues(model.RoleLabel(out.Role), string(out.Status)).Inc()

	ev := c.logger.Debug()
	switch out.Status {
	case StatusFallback:
		ev = c.logger.Warn().Err(out.Err)
	case StatusFailed:
		ev = c.logger.Error().Err(out.Err)
	case StatusResponded:
		ev = c.logger.Info()
	}
	ev.Str("conversation", in.ConversationID).
		Str("role", string(out.Role)).
		Str("status", string(out.Status)).
		Str("reason", string(out.Decision.Reason)).
		Msg("ai participant run finished")
	return out
}
