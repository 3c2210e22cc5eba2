// Package api serves the chat service over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"groupchat/api/middleware"
)

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(logger zerolog.Logger, h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", headerUserID, headerUserName, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/roles", h.Roles)
	r.Post("/decide", h.Decide)

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.CreateConversation)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetConversation)
			r.Post("/join", h.Join)
			r.Get("/messages", h.Messages)
			r.Post("/messages", h.SendMessage)
			r.Get("/search", h.Search)
			r.Get("/events", h.Events)
		})
	})

	return r
}
