package model

import (
	"slices"
	"time"
)

// User is a human chat member. Identity is asserted by the caller.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Name returns the display name, falling back to the id.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// Conversation is a chat room with its human members and AI participants.
type Conversation struct {
	ID             string          `json:"id"`
	CreatedBy      string          `json:"createdBy"`
	CreatorName    string          `json:"creatorName"`
	CreatedAt      time.Time       `json:"createdAt"`
	Members        []string        `json:"members"`
	AIParticipants []AIParticipant `json:"aiParticipants"`
	Open           bool            `json:"open"`
	JoinKeyHash    []byte          `json:"-"`
}

// HasMember reports whether userID belongs to the conversation.
func (c Conversation) HasMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}
