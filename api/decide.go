package api

import (
	"net/http"
	"strings"

	"groupchat/intervention"
	"groupchat/model"
)

// DecideRequest asks whether a participant would reply to a message.
type DecideRequest struct {
	Participant    model.AIParticipant `json:"participant"`
	Message        string              `json:"message"`
	ConversationID string              `json:"conversationId,omitempty"`
}

// DecideResponse represents the dry-run decision.
type DecideResponse struct {
	Role     model.Role     `json:"role"`
	Decision model.Decision `json:"decision"`
}

// Decide handles POST /decide. It evaluates the intervention rules without
// writing anything. With a conversation id the caller must be a member and
// that conversation's recent history is used.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(string(req.Participant.Role)) == "" {
		h.Error(w, http.StatusBadRequest, "participant.role is required")
		return
	}

	sender := model.User{ID: sanitize(r.Header.Get(headerUserID), 128), DisplayName: sanitize(r.Header.Get(headerUserName), 100)}

	var history []model.Message
	if req.ConversationID != "" {
		user, ok := h.caller(w, r)
		if !ok {
			return
		}
		var err error
		history, err = h.svc.Messages(r.Context(), req.ConversationID, user, intervention.DecisionWindow()-1)
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	history = append(history, model.Message{
		ConversationID: req.ConversationID,
		Kind:           model.KindHuman,
		Content:        req.Message,
		Sender:         sender.ID,
		SenderName:     sender.Name(),
	})

	p := req.Participant.Normalize()
	h.JSON(w, http.StatusOK, DecideResponse{
		Role:     p.Role,
		Decision: h.decider.Decide(history, p, req.Message),
	})
}
