package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/status", s.handleGetStatus)
			r.Post("/command", s.handleCommand)
			r.Post("/raw", s.handleRawWrite)
			r.Post("/reconnect", s.handleReconnect)
			r.Get("/datapoints", s.handleListDatapoints)
			r.Get("/commands", s.handleListCommands)
			r.Get("/metrics", s.handleMetrics)

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}
