package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies who produced a message.
type Kind string

const (
	KindHuman  Kind = "user"
	KindAI     Kind = "ai"
	KindSystem Kind = "system"
)

// ParseKind accepts the persisted names plus "human" as an alias for KindHuman.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "human":
		return KindHuman, nil
	case "ai":
		return KindAI, nil
	case "system":
		return KindSystem, nil
	default:
		return "", fmt.Errorf("unknown message kind: %q", s)
	}
}

// PlaceholderContent is shown while an AI reply is being generated.
const PlaceholderContent = "..."

// Message is a single entry in a conversation. Messages are never deleted;
// placeholders are flagged suppressed or overwritten in place instead.
type Message struct {
	ID                 string     `json:"id"`
	ConversationID     string     `json:"conversationId"`
	Kind               Kind       `json:"type"`
	Content            string     `json:"content"`
	Timestamp          time.Time  `json:"timestamp"`
	Sender             string     `json:"sender,omitempty"`
	SenderName         string     `json:"senderName,omitempty"`
	IsPlaceholder      bool       `json:"isTyping,omitempty"`
	IsSuppressed       bool       `json:"isHidden,omitempty"`
	CorrelationID      string     `json:"typingId,omitempty"`
	InterventionReason ReasonCode `json:"interventionReason,omitempty"`
}

// IsVisible reports whether the message should be shown to participants.
func (m Message) IsVisible() bool {
	return !m.IsSuppressed
}

// MessagePatch is a partial update. Nil fields are left untouched.
type MessagePatch struct {
	Content       *string
	IsPlaceholder *bool
	IsSuppressed  *bool
}

// Apply returns a copy of m with the patch applied.
func (p MessagePatch) Apply(m Message) Message {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.IsPlaceholder != nil {
		m.IsPlaceholder = *p.IsPlaceholder
	}
	if p.IsSuppressed != nil {
		m.IsSuppressed = *p.IsSuppressed
	}
	return m
}

// SuppressPatch hides a placeholder once the real reply exists.
func SuppressPatch() MessagePatch {
	return MessagePatch{IsSuppressed: Bool(true), IsPlaceholder: Bool(false)}
}

// FallbackPatch overwrites a placeholder with fallback text.
func FallbackPatch(content string) MessagePatch {
	return MessagePatch{Content: &content, IsPlaceholder: Bool(false)}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s.
func String(s string) *string { return &s }
