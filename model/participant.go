package model

import "strings"

// Role is an AI participant's persona identifier.
type Role string

const (
	RoleModerator  Role = "moderator"
	RolePlanner    Role = "planner"
	RoleSummarizer Role = "summarizer"
	RoleEducator   Role = "educator"
)

// Sensitivity controls how eagerly a participant intervenes.
type Sensitivity string

const (
	SensitivitySilent       Sensitivity = "silent"
	SensitivityConservative Sensitivity = "conservative"
	SensitivityBalanced     Sensitivity = "balanced"
	SensitivityProactive    Sensitivity = "proactive"
)

// ParseSensitivity is case-insensitive. Empty and unknown values map to
// SensitivityConservative.
func ParseSensitivity(s string) Sensitivity {
	switch Sensitivity(strings.ToLower(strings.TrimSpace(s))) {
	case SensitivitySilent:
		return SensitivitySilent
	case SensitivityBalanced:
		return SensitivityBalanced
	case SensitivityProactive:
		return SensitivityProactive
	default:
		return SensitivityConservative
	}
}

// AIParticipant is an AI persona configured for a conversation.
type AIParticipant struct {
	Role          Role        `json:"role" toml:"role"`
	CustomMention string      `json:"customMention,omitempty" toml:"custom_mention"`
	Sensitivity   Sensitivity `json:"sensitivityLevel" toml:"sensitivity"`
	DisplayName   string      `json:"name,omitempty" toml:"name"`
}

// Normalize lowercases the role, trims the alias and its leading "@", and
// resolves the sensitivity level.
func (p AIParticipant) Normalize() AIParticipant {
	p.Role = Role(strings.ToLower(strings.TrimSpace(string(p.Role))))
	p.CustomMention = strings.TrimPrefix(strings.TrimSpace(p.CustomMention), "@")
	p.Sensitivity = ParseSensitivity(string(p.Sensitivity))
	if p.DisplayName == "" {
		p.DisplayName = LookupRole(p.Role).Name
	}
	return p
}

// SenderName is the display label used on messages this participant writes.
func (p AIParticipant) SenderName() string {
	return SenderLabel(p.Role)
}
