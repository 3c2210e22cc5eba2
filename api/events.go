package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"groupchat/model"
)

// Events handles GET /conversations/{id}/events as a server-sent event
// stream. Recent messages are replayed first, then every append and update
// is sent as it happens. Clients dedupe by message id.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	sess, err := h.svc.Enter(r.Context(), id, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer sess.Close()

	var backlog []model.Message
	if h.backlog > 0 {
		backlog, err = sess.Recent(r.Context(), h.backlog)
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, m := range backlog {
		if err := writeEvent(w, m); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		h.logger.Debug().Err(err).Msg("event stream not flushable")
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case m, ok := <-sess.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, m); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, m model.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", m.ID, data)
	return err
}
