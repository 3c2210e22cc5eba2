package lifecycle

import (
	"fmt"
	"strings"

	"groupchat/model"
)

// FallbackResponse is the text written over a placeholder when generation
// fails. With a known reason it is worded for an explicit call or an
// automatic trigger; with no reason it is guessed from lastHuman.
func FallbackResponse(role model.Role, reason model.ReasonCode, lastHuman string) string {
	if reason == "" {
		return heuristicFallback(role, lastHuman)
	}

	explicit := reason == model.ReasonExplicitMention
	switch role {
	case model.RoleModerator:
		if explicit {
			return "You called for the moderator. I'm here to help keep the conversation productive."
		}
		return "I noticed the conversation might benefit from some moderation. How can I help?"
	case model.RoleSummarizer:
		if explicit {
			return "You asked for a summary. I'll help consolidate the key points from this conversation."
		}
		return "I notice there have been several messages. Here's a quick summary of the main points..."
	case model.RolePlanner:
		if explicit {
			return "You called the planner. I can help organize any tasks or deadlines."
		}
		return "I notice planning-related topics. Would you like me to help organize these tasks?"
	default:
		if explicit {
			return fmt.Sprintf("You called for %s. How can I assist you?", role)
		}
		return fmt.Sprintf("I'm the %s, jumping in to provide some assistance.", role)
	}
}

func heuristicFallback(role model.Role, lastHuman string) string {
	lower := strings.ToLower(lastHuman)

	switch role {
	case model.RoleModerator:
		switch {
		case strings.Contains(lower, "fight"), strings.Contains(lower, "argue"):
			return "Let's keep the conversation civil, everyone. Try to focus on understanding each other's perspectives."
		case strings.Contains(lower, "hello"), strings.Contains(lower, "hi"):
			return "Hello! Welcome to the chat. What would you like to discuss today?"
		}
		return "I'm listening and following along. Feel free to continue the conversation."
	case model.RolePlanner:
		switch {
		case strings.Contains(lower, "schedule"), strings.Contains(lower, "plan"):
			return "I notice we're discussing scheduling. Would you like me to create a plan or timeline for this?"
		case strings.Contains(lower, "todo"), strings.Contains(lower, "task"):
			return "I've noted that task. I'll add it to our action items list."
		}
		return "I'm tracking the conversation. Let me know if you need me to organize any tasks or deadlines."
	case model.RoleSummarizer:
		if runes := []rune(lastHuman); len(runes) > 100 {
			return "Thanks for that detailed message. To summarize: " + string(runes[:50]) + "..."
		}
		return "I'm collecting key points from the discussion. I'll provide a summary once we have more content."
	default:
		return fmt.Sprintf("As the %s, I acknowledge your message and am here to assist.", role)
	}
}

// lastHumanContent returns the newest human message in history.
func lastHumanContent(history []model.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == model.KindHuman {
			return history[i].Content
		}
	}
	return ""
}
