package intervention

import (
	"strings"

	"groupchat/model"
)

// DetectMention reports whether text addresses the participant. Matching is
// a case-insensitive substring test with no word boundary, so "@moderators"
// also addresses the moderator. Candidates, in order: the custom alias, the
// alias stripped to [a-z0-9], the role id, and the first three letters of the
// role id.
func DetectMention(text string, p model.AIParticipant) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, handle := range mentionHandles(p) {
		if strings.Contains(lower, "@"+handle) {
			return true
		}
	}
	return false
}

func mentionHandles(p model.AIParticipant) []string {
	var handles []string
	if alias := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p.CustomMention), "@")); alias != "" {
		handles = append(handles, alias)
		if stripped := alphanumeric(alias); stripped != "" && stripped != alias {
			handles = append(handles, stripped)
		}
	}

	role := strings.ToLower(strings.TrimSpace(string(p.Role)))
	if role != "" {
		handles = append(handles, role)
		if r := []rune(role); len(r) > 3 {
			handles = append(handles, string(r[:3]))
		}
	}
	return handles
}

func alphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
