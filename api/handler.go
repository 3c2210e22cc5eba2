package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"groupchat/chat"
	"groupchat/lifecycle"
	"groupchat/model"
	"groupchat/storage"
)

const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"

	maxBodyBytes = 64 << 10
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc       *chat.Service
	decider   lifecycle.Decider
	store     Pinger
	heartbeat time.Duration
	backlog   int
	logger    zerolog.Logger
}

type HandlerOption func(*Handler)

// WithHeartbeat sets how often an idle event stream sends a keep-alive
// comment.
func WithHeartbeat(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithBacklog sets how many recent messages an event stream replays on
// connect.
func WithBacklog(n int) HandlerOption {
	return func(h *Handler) {
		if n >= 0 {
			h.backlog = n
		}
	}
}

func WithLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a new Handler. store may be nil, in which case
// /health reports only that the process is up.
func NewHandler(svc *chat.Service, decider lifecycle.Decider, store Pinger, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:       svc,
		decider:   decider,
		store:     store,
		heartbeat: 15 * time.Second,
		backlog:   50,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug().Err(err).Msg("failed to write response")
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// fail maps service errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrInvalidUser):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotMember), errors.Is(err, chat.ErrJoinDenied):
		h.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		h.Error(w, http.StatusNotFound, "conversation not found")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// caller reads the asserted identity headers. It writes 401 and returns
// false when no user id is present.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	id := sanitize(r.Header.Get(headerUserID), 128)
	if id == "" {
		h.Error(w, http.StatusUnauthorized, headerUserID+" header required")
		return model.User{}, false
	}
	return model.User{ID: id, DisplayName: sanitize(r.Header.Get(headerUserName), 100)}, true
}

// sanitize trims s, drops control characters and caps it at max bytes.
func sanitize(s string, max int) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) > max {
		s = s[:max]
	}
	return s
}
