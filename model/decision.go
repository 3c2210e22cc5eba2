package model

// ReasonCode explains why a participant did or did not intervene.
type ReasonCode string

const (
	ReasonExplicitMention        ReasonCode = "explicit_mention"
	ReasonSilentMode             ReasonCode = "silent_mode"
	ReasonGreetingNewChat        ReasonCode = "greeting_new_chat"
	ReasonPotentialArgument      ReasonCode = "potential_argument"
	ReasonEncourageParticipation ReasonCode = "encourage_participation"
	ReasonProactiveEngagement    ReasonCode = "proactive_engagement"
	ReasonNoModeratorTrigger     ReasonCode = "no_moderator_trigger"
	ReasonThresholdReached       ReasonCode = "message_threshold_reached"
	ReasonNoSummarizerTrigger    ReasonCode = "no_summarizer_trigger"
	ReasonPlanningTopic          ReasonCode = "planning_topic_detected"
	ReasonNoPlannerTrigger       ReasonCode = "no_planner_trigger"
	ReasonNoTriggerForRole       ReasonCode = "no_trigger_for_role"
	ReasonDecisionError          ReasonCode = "error_in_decision_logic"
)

// Decision is the outcome of evaluating one participant against one message.
type Decision struct {
	ShouldRespond bool       `json:"shouldRespond"`
	Reason        ReasonCode `json:"reason"`
	Confidence    float64    `json:"confidence"`
	// Err is set only alongside ReasonDecisionError.
	Err error `json:"-"`
}

// Respond builds a positive decision.
func Respond(reason ReasonCode, confidence float64) Decision {
	return Decision{ShouldRespond: true, Reason: reason, Confidence: confidence}
}

// Decline builds a negative decision.
func Decline(reason ReasonCode, confidence float64) Decision {
	return Decision{ShouldRespond: false, Reason: reason, Confidence: confidence}
}
