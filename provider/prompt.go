package provider

import (
	"strings"

	"groupchat/model"
)

// FormatHistory renders messages one per line, prefixed by who sent them.
func FormatHistory(messages []model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		var prefix string
		switch m.Kind {
		case model.KindHuman:
			name := m.SenderName
			if name == "" {
				name = "Unknown"
			}
			prefix = "User (" + name + "): "
		case model.KindAI:
			prefix = "AI " + m.Sender + ": "
		default:
			prefix = "System: "
		}
		lines = append(lines, prefix+m.Content)
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt combines the role's prompt template with formatted history.
func BuildPrompt(role model.Role, history string) string {
	info := model.LookupRole(role)
	return info.PromptTemplate + "\n\nChat history:\n" + history + "\n\nYour response:"
}
