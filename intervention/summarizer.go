package intervention

import "groupchat/model"

// SummaryThreshold is the number of messages since the summarizer last spoke
// that triggers a new summary.
func SummaryThreshold(level model.Sensitivity) int {
	switch level {
	case model.SensitivityProactive:
		return 5
	case model.SensitivityBalanced:
		return 8
	default:
		return 12
	}
}

func summarizerDecision(recent []model.Message, level model.Sensitivity) model.Decision {
	if sinceLastSpoke(recent, model.RoleSummarizer) >= SummaryThreshold(level) {
		return model.Respond(model.ReasonThresholdReached, 0.8)
	}
	return model.Decline(model.ReasonNoSummarizerTrigger, 0.9)
}

// DecisionWindow is how many recent messages, including the latest, a caller
// must pass to Decide for every threshold to be reachable.
func DecisionWindow() int {
	return SummaryThreshold(model.SensitivityConservative) + 1
}
