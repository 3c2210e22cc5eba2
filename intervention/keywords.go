package intervention

import (
	"strings"

	"groupchat/model"
)

// Keyword tiers are cumulative: balanced includes conservative, proactive
// includes both.
var (
	argumentConservative = []string{
		"i disagree", "you're wrong", "that's not right", "incorrect", "you don't understand",
	}
	argumentBalanced = []string{
		"not true", "stupid", "idiot", "shut up", "nonsense",
	}
	argumentProactive = []string{
		"no", "never", "bad idea", "terrible", "hate", "don't like", "ridiculous", "bad", "worst",
	}

	planningConservative = []string{
		"schedule", "plan", "organize", "task", "todo", "timeline", "deadline", "project", "due date", "milestones",
	}
	planningBalanced = []string{
		"goal", "meeting", "appointment", "agenda", "objective",
	}
	planningProactive = []string{
		"when", "how", "steps", "process", "method", "strategy", "time", "date", "week", "month", "tomorrow", "next",
	}
)

// tiered returns the keyword set active at level. Silent is handled before
// keywords are consulted and gets the conservative set here.
func tiered(level model.Sensitivity, conservative, balanced, proactive []string) []string {
	words := append([]string(nil), conservative...)
	switch level {
	case model.SensitivityBalanced:
		words = append(words, balanced...)
	case model.SensitivityProactive:
		words = append(words, balanced...)
		words = append(words, proactive...)
	}
	return words
}

// ArgumentKeywords returns the disagreement phrases watched at level.
func ArgumentKeywords(level model.Sensitivity) []string {
	return tiered(level, argumentConservative, argumentBalanced, argumentProactive)
}

// PlanningKeywords returns the planning terms watched at level.
func PlanningKeywords(level model.Sensitivity) []string {
	return tiered(level, planningConservative, planningBalanced, planningProactive)
}

// containsAny is a plain substring test, so "no" matches "know".
func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
