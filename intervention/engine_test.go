package intervention

import (
	"fmt"
	"math/rand/v2"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/metrics"
	"groupchat/model"
)

func human(sender, content string) model.Message {
	return model.Message{Kind: model.KindHuman, Sender: sender, SenderName: sender, Content: content}
}

func ai(role model.Role, content string) model.Message {
	return model.Message{Kind: model.KindAI, Sender: string(role), SenderName: model.SenderLabel(role), Content: content}
}

// conversation builds n alternating human messages ending with latest.
func conversation(prefix []model.Message, n int, latest string) []model.Message {
	msgs := append([]model.Message(nil), prefix...)
	senders := []string{"alice", "bob"}
	for i := 0; i < n-1; i++ {
		msgs = append(msgs, human(senders[i%2], fmt.Sprintf("message %d", i)))
	}
	return append(msgs, human("carol", latest))
}

func participant(role model.Role, level model.Sensitivity) model.AIParticipant {
	return model.AIParticipant{Role: role, Sensitivity: level}
}

func fixedRandom(v float64) Option {
	return WithRandom(func() float64 { return v })
}

func TestDecideExplicitMentionBeatsSilent(t *testing.T) {
	e := NewEngine()
	p := participant(model.RoleModerator, model.SensitivitySilent)
	history := conversation([]model.Message{ai(model.RoleModerator, "hi")}, 6, "@moderator can you help?")

	d := e.Decide(history, p, "@moderator can you help?")

	assert.True(t, d.ShouldRespond)
	assert.Equal(t, model.ReasonExplicitMention, d.Reason)
	assert.Equal(t, 1.0, d.Confidence)
	assert.NoError(t, d.Err)
}

func TestDecideSilentMode(t *testing.T) {
	e := NewEngine()
	for _, role := range []model.Role{model.RoleModerator, model.RolePlanner, model.RoleSummarizer, model.RoleEducator} {
		t.Run(string(role), func(t *testing.T) {
			p := participant(role, model.SensitivitySilent)
			d := e.Decide(conversation(nil, 20, "let's plan the deadline, I disagree"), p, "let's plan the deadline, I disagree")

			assert.False(t, d.ShouldRespond)
			assert.Equal(t, model.ReasonSilentMode, d.Reason)
			assert.Equal(t, 1.0, d.Confidence)
		})
	}
}

func TestDecideModerator(t *testing.T) {
	spoke := []model.Message{ai(model.RoleModerator, "Welcome!")}

	tests := []struct {
		name       string
		level      model.Sensitivity
		history    []model.Message
		latest     string
		random     float64
		wantReply  bool
		wantReason model.ReasonCode
		wantConf   float64
	}{
		{
			name:       "greets a new chat",
			level:      model.SensitivityConservative,
			history:    conversation(nil, 2, "hey all"),
			latest:     "hey all",
			random:     0.9,
			wantReply:  true,
			wantReason: model.ReasonGreetingNewChat,
			wantConf:   0.9,
		},
		{
			name:       "no greeting once the chat is past three messages",
			level:      model.SensitivityConservative,
			history:    conversation(nil, 4, "hey all"),
			latest:     "hey all",
			random:     0.9,
			wantReply:  false,
			wantReason: model.ReasonNoModeratorTrigger,
			wantConf:   0.8,
		},
		{
			name:       "no greeting after the moderator has spoken",
			level:      model.SensitivityConservative,
			history:    conversation(spoke, 1, "hey all"),
			latest:     "hey all",
			random:     0.9,
			wantReply:  false,
			wantReason: model.ReasonNoModeratorTrigger,
			wantConf:   0.8,
		},
		{
			name:       "conservative argument phrase",
			level:      model.SensitivityConservative,
			history:    conversation(spoke, 5, "I disagree, you're wrong"),
			latest:     "I disagree, you're wrong",
			random:     0.9,
			wantReply:  true,
			wantReason: model.ReasonPotentialArgument,
			wantConf:   0.7,
		},
		{
			name:       "balanced phrase ignored by conservative",
			level:      model.SensitivityConservative,
			history:    conversation(spoke, 5, "that is nonsense"),
			latest:     "that is nonsense",
			random:     0.9,
			wantReply:  false,
			wantReason: model.ReasonNoModeratorTrigger,
			wantConf:   0.8,
		},
		{
			name:       "balanced chat with no moderator turn yet",
			level:      model.SensitivityBalanced,
			history:    conversation(nil, 5, "you're wrong about that"),
			latest:     "you're wrong about that",
			random:     0.0,
			wantReply:  true,
			wantReason: model.ReasonPotentialArgument,
			wantConf:   0.7,
		},
		{
			name:       "balanced phrase caught by balanced",
			level:      model.SensitivityBalanced,
			history:    conversation(spoke, 5, "that is nonsense"),
			latest:     "that is nonsense",
			random:     0.9,
			wantReply:  true,
			wantReason: model.ReasonPotentialArgument,
			wantConf:   0.7,
		},
		{
			name:    "proactive monologue",
			level:   model.SensitivityProactive,
			history: append(append([]model.Message(nil), spoke...), human("alice", "one"), human("alice", "two"), human("alice", "three")),
			latest:  "three",
			// a low draw would also trigger, but the monologue check comes first
			random:     0.0,
			wantReply:  true,
			wantReason: model.ReasonEncourageParticipation,
			wantConf:   0.6,
		},
		{
			name:       "proactive random engagement",
			level:      model.SensitivityProactive,
			history:    conversation(spoke, 5, "sounds good"),
			latest:     "sounds good",
			random:     0.1,
			wantReply:  true,
			wantReason: model.ReasonProactiveEngagement,
			wantConf:   0.5,
		},
		{
			name:       "proactive keyword after failed draw",
			level:      model.SensitivityProactive,
			history:    conversation(spoke, 5, "worst idea ever"),
			latest:     "worst idea ever",
			random:     0.5,
			wantReply:  true,
			wantReason: model.ReasonPotentialArgument,
			wantConf:   0.7,
		},
		{
			name:       "proactive nothing to do",
			level:      model.SensitivityProactive,
			history:    conversation(spoke, 5, "sounds good"),
			latest:     "sounds good",
			random:     0.5,
			wantReply:  false,
			wantReason: model.ReasonNoModeratorTrigger,
			wantConf:   0.8,
		},
		{
			name:       "monologue check needs the human kind",
			level:      model.SensitivityProactive,
			history:    []model.Message{human("alice", "one"), human("alice", "two"), ai(model.RoleModerator, "three"), human("alice", "four")},
			latest:     "four",
			random:     0.5,
			wantReply:  false,
			wantReason: model.ReasonNoModeratorTrigger,
			wantConf:   0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(fixedRandom(tt.random))
			d := e.Decide(tt.history, participant(model.RoleModerator, tt.level), tt.latest)

			assert.Equal(t, tt.wantReply, d.ShouldRespond)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantConf, d.Confidence)
		})
	}
}

func TestDecideProactiveChanceOption(t *testing.T) {
	history := conversation([]model.Message{ai(model.RoleModerator, "hi")}, 5, "sounds good")
	p := participant(model.RoleModerator, model.SensitivityProactive)

	never := NewEngine(fixedRandom(0.0), WithProactiveChance(0))
	assert.Equal(t, model.ReasonNoModeratorTrigger, never.Decide(history, p, "sounds good").Reason)

	always := NewEngine(fixedRandom(0.99), WithProactiveChance(1))
	assert.Equal(t, model.ReasonProactiveEngagement, always.Decide(history, p, "sounds good").Reason)
}

func TestDecideProactiveDrawRate(t *testing.T) {
	src := rand.New(rand.NewPCG(7, 42))
	e := NewEngine(WithRandom(src.Float64))
	history := conversation([]model.Message{ai(model.RoleModerator, "hi")}, 5, "sounds good")
	p := participant(model.RoleModerator, model.SensitivityProactive)

	const draws = 10000
	engaged := 0
	for range draws {
		d := e.Decide(history, p, "sounds good")
		if d.Reason == model.ReasonProactiveEngagement {
			engaged++
			continue
		}
		require.Equal(t, model.ReasonNoModeratorTrigger, d.Reason)
	}

	assert.InDelta(t, 0.3, float64(engaged)/draws, 0.03)
}

func TestDecideSummarizer(t *testing.T) {
	tests := []struct {
		name      string
		level     model.Sensitivity
		history   []model.Message
		wantReply bool
	}{
		{"conservative at threshold", model.SensitivityConservative, conversation(nil, 12, "x"), true},
		{"conservative below threshold", model.SensitivityConservative, conversation(nil, 11, "x"), false},
		{"balanced at threshold", model.SensitivityBalanced, conversation(nil, 8, "x"), true},
		{"balanced below threshold", model.SensitivityBalanced, conversation(nil, 7, "x"), false},
		{"proactive at threshold", model.SensitivityProactive, conversation(nil, 5, "x"), true},
		{"proactive below threshold", model.SensitivityProactive, conversation(nil, 4, "x"), false},
		{
			"counts only messages since last summary",
			model.SensitivityProactive,
			conversation(append(conversation(nil, 10, "x"), ai(model.RoleSummarizer, "summary")), 4, "x"),
			false,
		},
		{
			"threshold reached after last summary",
			model.SensitivityProactive,
			conversation(append(conversation(nil, 10, "x"), ai(model.RoleSummarizer, "summary")), 5, "x"),
			true,
		},
	}

	e := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(tt.history, participant(model.RoleSummarizer, tt.level), "x")

			assert.Equal(t, tt.wantReply, d.ShouldRespond)
			if tt.wantReply {
				assert.Equal(t, model.ReasonThresholdReached, d.Reason)
				assert.Equal(t, 0.8, d.Confidence)
			} else {
				assert.Equal(t, model.ReasonNoSummarizerTrigger, d.Reason)
				assert.Equal(t, 0.9, d.Confidence)
			}
		})
	}
}

func TestDecideSummarizerIgnoresSuppressedPlaceholder(t *testing.T) {
	placeholder := ai(model.RoleSummarizer, model.PlaceholderContent)
	placeholder.IsSuppressed = true
	history := conversation([]model.Message{placeholder}, 4, "x")

	d := NewEngine().Decide(history, participant(model.RoleSummarizer, model.SensitivityProactive), "x")
	assert.True(t, d.ShouldRespond)
}

func TestDecidePlanner(t *testing.T) {
	tests := []struct {
		level     model.Sensitivity
		latest    string
		wantReply bool
	}{
		{model.SensitivityConservative, "We need a timeline for the launch", true},
		{model.SensitivityConservative, "what's the schedule?", true},
		{model.SensitivityBalanced, "what's the schedule?", true},
		{model.SensitivityProactive, "what's the schedule?", true},
		{model.SensitivityConservative, "see you tomorrow", false},
		{model.SensitivityConservative, "let's meet tomorrow to plan", true},
		{model.SensitivityConservative, "Set up a meeting with design", false},
		{model.SensitivityBalanced, "Set up a meeting with design", true},
		{model.SensitivityBalanced, "see you tomorrow", false},
		{model.SensitivityProactive, "see you tomorrow", true},
		{model.SensitivityProactive, "lol", false},
	}

	e := NewEngine()
	for _, tt := range tests {
		t.Run(string(tt.level)+"/"+tt.latest, func(t *testing.T) {
			d := e.Decide(conversation(nil, 6, tt.latest), participant(model.RolePlanner, tt.level), tt.latest)

			assert.Equal(t, tt.wantReply, d.ShouldRespond)
			if tt.wantReply {
				assert.Equal(t, model.ReasonPlanningTopic, d.Reason)
				assert.Equal(t, 0.7, d.Confidence)
			} else {
				assert.Equal(t, model.ReasonNoPlannerTrigger, d.Reason)
				assert.Equal(t, 0.9, d.Confidence)
			}
		})
	}
}

func TestDecideUnknownSensitivityIsConservative(t *testing.T) {
	p := model.AIParticipant{Role: model.RolePlanner, Sensitivity: "loud"}
	d := NewEngine().Decide(conversation(nil, 3, "book a meeting"), p, "book a meeting")

	assert.False(t, d.ShouldRespond)
	assert.Equal(t, model.ReasonNoPlannerTrigger, d.Reason)
}

func TestDecideOtherRoles(t *testing.T) {
	e := NewEngine()
	for _, role := range []model.Role{model.RoleEducator, "historian"} {
		t.Run(string(role), func(t *testing.T) {
			p := participant(role, model.SensitivityProactive)

			d := e.Decide(conversation(nil, 20, "plan? I disagree"), p, "plan? I disagree")
			assert.False(t, d.ShouldRespond)
			assert.Equal(t, model.ReasonNoTriggerForRole, d.Reason)
			assert.Equal(t, 1.0, d.Confidence)

			mention := "@" + string(role) + " explain please"
			d = e.Decide(conversation(nil, 2, mention), p, mention)
			assert.True(t, d.ShouldRespond)
			assert.Equal(t, model.ReasonExplicitMention, d.Reason)
		})
	}
}

func TestDecideRecoversFromPanic(t *testing.T) {
	e := NewEngine(WithRandom(func() float64 { panic("random source exploded") }))
	history := conversation([]model.Message{ai(model.RoleModerator, "hi")}, 5, "sounds good")

	d := e.Decide(history, participant(model.RoleModerator, model.SensitivityProactive), "sounds good")

	assert.False(t, d.ShouldRespond)
	assert.Equal(t, model.ReasonDecisionError, d.Reason)
	assert.Equal(t, 1.0, d.Confidence)
	require.Error(t, d.Err)
	assert.Contains(t, d.Err.Error(), "random source exploded")
}

func TestDecisionMetricsBoundCustomRoles(t *testing.T) {
	e := NewEngine()
	custom := metrics.InterventionDecisions.WithLabelValues("custom", string(model.ReasonNoTriggerForRole))
	before := promtest.ToFloat64(custom)
	seriesBefore := promtest.CollectAndCount(metrics.InterventionDecisions)

	for _, role := range []model.Role{"historian-7c1e", "poet-b04d"} {
		e.Decide(conversation(nil, 2, "hello"), participant(role, model.SensitivityProactive), "hello")
	}

	assert.Equal(t, before+2, promtest.ToFloat64(custom))
	assert.Equal(t, seriesBefore, promtest.CollectAndCount(metrics.InterventionDecisions))
}
