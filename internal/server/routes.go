package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	// Conversation
	r.Post("/converse", s.converse)

	// Session introspection
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Get("/history", s.getHistory)
	})

	// Config
	r.Get("/config", s.getConfig)

	// Notifications (SSE)
	r.Get("/event", s.events)

	// Bidirectional control channel (JSON-RPC over WebSocket)
	r.Get("/rpc", s.rpc)
}
