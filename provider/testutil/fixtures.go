package testutil

import (
	"time"

	"groupchat/model"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// HumanMessage returns a visible message from a person.
func HumanMessage(sender, name, content string) model.Message {
	return model.Message{
		Kind:       model.KindHuman,
		Sender:     sender,
		SenderName: name,
		Content:    content,
		Timestamp:  baseTime,
	}
}

// AIMessage returns a final (non-placeholder) reply from a participant.
func AIMessage(role model.Role, content string) model.Message {
	return model.Message{
		Kind:       model.KindAI,
		Sender:     string(role),
		SenderName: model.SenderLabel(role),
		Content:    content,
		Timestamp:  baseTime,
	}
}

// SystemMessage returns a join/create notice.
func SystemMessage(content string) model.Message {
	return model.Message{Kind: model.KindSystem, Content: content, Timestamp: baseTime}
}

// TestConversation returns a short three-person exchange.
func TestConversation() []model.Message {
	msgs := []model.Message{
		SystemMessage("Chat created by Alice"),
		HumanMessage("alice", "Alice", "Hello, how is everyone?"),
		AIMessage(model.RoleModerator, "Welcome, glad you're here."),
		HumanMessage("bob", "Bob", "Can we plan the release for next week?"),
	}
	for i := range msgs {
		msgs[i].Timestamp = baseTime.Add(time.Duration(i) * time.Second)
	}
	return msgs
}

// Participant returns a normalized participant.
func Participant(role model.Role, sensitivity model.Sensitivity) model.AIParticipant {
	return model.AIParticipant{Role: role, Sensitivity: sensitivity}.Normalize()
}
