package intervention

import "groupchat/model"

const (
	greetingWindow       = 3
	monologueLength      = 3
	defaultProactiveOdds = 0.3
)

func (e *Engine) moderatorDecision(recent []model.Message, level model.Sensitivity, latest string) model.Decision {
	if !hasSpoken(recent, model.RoleModerator) && len(recent) <= greetingWindow {
		return model.Respond(model.ReasonGreetingNewChat, 0.9)
	}

	if level == model.SensitivityProactive {
		if isMonologue(recent) {
			return model.Respond(model.ReasonEncourageParticipation, 0.6)
		}
		if e.random() < e.proactiveChance {
			return model.Respond(model.ReasonProactiveEngagement, 0.5)
		}
	}

	if containsAny(latest, ArgumentKeywords(level)) {
		return model.Respond(model.ReasonPotentialArgument, 0.7)
	}
	return model.Decline(model.ReasonNoModeratorTrigger, 0.8)
}

// isMonologue reports whether the last three messages all come from the same
// human.
func isMonologue(recent []model.Message) bool {
	if len(recent) < monologueLength {
		return false
	}
	tail := recent[len(recent)-monologueLength:]
	first := tail[0]
	for _, m := range tail {
		if m.Kind != model.KindHuman || m.Sender != first.Sender {
			return false
		}
	}
	return true
}

// hasSpoken reports whether role has a visible, finished message in recent.
func hasSpoken(recent []model.Message, role model.Role) bool {
	return sinceLastSpoke(recent, role) < len(recent)
}

// sinceLastSpoke counts messages after role's most recent reply. If role has
// never spoken the whole length is returned.
func sinceLastSpoke(recent []model.Message, role model.Role) int {
	count := 0
	for i := len(recent) - 1; i >= 0; i-- {
		if spokeAs(recent[i], role) {
			break
		}
		count++
	}
	return count
}

func spokeAs(m model.Message, role model.Role) bool {
	return m.Kind == model.KindAI && model.Role(m.Sender) == role && !m.IsPlaceholder && !m.IsSuppressed
}
