package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"groupchat/chat"
	"groupchat/model"
	"groupchat/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// CreateConversationRequest represents the conversation creation request.
type CreateConversationRequest struct {
	Participants []model.AIParticipant `json:"aiParticipants"`
	JoinKey      string                `json:"joinKey,omitempty"`
	Open         bool                  `json:"open"`
}

// JoinRequest represents the join request.
type JoinRequest struct {
	JoinKey string `json:"joinKey,omitempty"`
}

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// MessagesResponse represents the get messages response.
type MessagesResponse struct {
	ConversationID string          `json:"conversationId"`
	Messages       []model.Message `json:"messages"`
}

// limit parses the optional limit query parameter, capped at maxPageSize.
func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultPageSize, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxPageSize), true
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("store health check failed")
			resp["status"] = "degraded"
			resp["store"] = err.Error()
			h.JSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["store"] = "ok"
	}
	h.JSON(w, http.StatusOK, resp)
}

// Roles handles GET /roles.
func (h *Handler) Roles(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]any{"roles": model.BuiltinRoles()})
}

// CreateConversation handles POST /conversations.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateConversationRequest
	if !h.decode(w, r, &req) {
		return
	}

	conv, err := h.svc.CreateConversation(r.Context(), user, chat.CreateOptions{
		Participants: req.Participants,
		JoinKey:      req.JoinKey,
		Open:         req.Open,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, conv)
}

// GetConversation handles GET /conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Conversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, conv)
}

// Join handles POST /conversations/{id}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req JoinRequest
	if !h.decode(w, r, &req) {
		return
	}

	conv, err := h.svc.Join(r.Context(), chi.URLParam(r, "id"), user, req.JoinKey)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, conv)
}

// Messages handles GET /conversations/{id}/messages.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	msgs, err := h.svc.Messages(r.Context(), id, user, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	h.JSON(w, http.StatusOK, MessagesResponse{ConversationID: id, Messages: msgs})
}

// SearchResponse represents the message search response.
type SearchResponse struct {
	Query   string                 `json:"query"`
	Matches []storage.MessageMatch `json:"matches"`
}

// Search handles GET /conversations/{id}/search?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.Error(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	matches, err := h.svc.Search(r.Context(), chi.URLParam(r, "id"), user, q, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, SearchResponse{Query: q, Matches: matches})
}

// SendMessage handles POST /conversations/{id}/messages. AI participants
// reply asynchronously; their messages arrive on the event stream.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req PostMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	msg, _, err := h.svc.SendMessage(r.Context(), chi.URLParam(r, "id"), user, req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}
