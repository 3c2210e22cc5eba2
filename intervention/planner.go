package intervention

import "groupchat/model"

func plannerDecision(level model.Sensitivity, latest string) model.Decision {
	if containsAny(latest, PlanningKeywords(level)) {
		return model.Respond(model.ReasonPlanningTopic, 0.7)
	}
	return model.Decline(model.ReasonNoPlannerTrigger, 0.9)
}
