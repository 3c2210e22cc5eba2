// Package intervention decides whether an AI participant should reply to the
// latest message in a conversation.
//
// Rules are evaluated in a fixed order: an explicit @mention always wins,
// silent participants never speak unprompted, and otherwise the participant's
// role picks a trigger policy whose eagerness follows its sensitivity level.
// Any failure while evaluating yields a safe "do not respond" decision.
package intervention

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"groupchat/metrics"
	"groupchat/model"
)

// Engine evaluates intervention decisions. It holds no per-conversation state
// and is safe for concurrent use as long as the random source is.
type Engine struct {
	random          func() float64
	proactiveChance float64
	logger          zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom replaces the source used for proactive engagement draws. It
// must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(e *Engine) {
		if fn != nil {
			e.random = fn
		}
	}
}

// WithProactiveChance sets the probability that a proactive moderator joins
// in without any other trigger.
func WithProactiveChance(p float64) Option {
	return func(e *Engine) {
		if p >= 0 && p <= 1 {
			e.proactiveChance = p
		}
	}
}

// WithLogger sets the logger used for decision tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine with a 30% proactive engagement chance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		random:          rand.Float64,
		proactiveChance: defaultProactiveOdds,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide evaluates p against latest, given recent conversation history
// (oldest first, including the latest message).
func (e *Engine) Decide(recent []model.Message, p model.AIParticipant, latest string) (d model.Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = model.Decision{
				ShouldRespond: false,
				Reason:        model.ReasonDecisionError,
				Confidence:    1.0,
				Err:           fmt.Errorf("intervention decision panicked: %v", r),
			}
			e.logger.Error().Err(d.Err).Str("role", string(p.Role)).Msg("decision failed")
		}
		metrics.InterventionDecisions.WithLabelValues(model.RoleLabel(p.Role), string(d.Reason)).Inc()
		e.logger.Debug().
			Str("role", string(p.Role)).
			Bool("respond", d.ShouldRespond).
			Str("reason", string(d.Reason)).
			Float64("confidence", d.Confidence).
			Msg("intervention decision")
	}()

	return e.decide(recent, p, latest)
}

func (e *Engine) decide(recent []model.Message, p model.AIParticipant, latest string) model.Decision {
	if DetectMention(latest, p) {
		return model.Respond(model.ReasonExplicitMention, 1.0)
	}

	level := model.ParseSensitivity(string(p.Sensitivity))
	if level == model.SensitivitySilent {
		return model.Decline(model.ReasonSilentMode, 1.0)
	}

	switch normalizeRole(p.Role) {
	case model.RoleModerator:
		return e.moderatorDecision(recent, level, latest)
	case model.RoleSummarizer:
		return summarizerDecision(recent, level)
	case model.RolePlanner:
		return plannerDecision(level, latest)
	default:
		return model.Decline(model.ReasonNoTriggerForRole, 1.0)
	}
}

func normalizeRole(r model.Role) model.Role {
	return model.AIParticipant{Role: r}.Normalize().Role
}
