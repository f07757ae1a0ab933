package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the chi router. Health and login are the only
// routes outside the authenticated group; the WebSocket endpoint sits
// inside it but authenticates via ticket in the handler instead of a
// bearer token, since browsers cannot set headers on upgrade requests.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.Use(s.applyCORS)
	r.Use(s.limitBody)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/zones", func(r chi.Router) {
				r.Get("/", s.handleListZones)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetZone)
					r.Put("/volume", s.handleSetZoneVolume)
					r.Put("/mute", s.handleSetZoneMute)
					r.Put("/stream", s.handleSetZoneStream)
					r.Post("/clients", s.handleAssignClient)
					r.Delete("/clients/{clientID}", s.handleUnassignClient)
				})
			})

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", s.handleListClients)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetClient)
					r.Put("/volume", s.handleSetClientVolume)
					r.Put("/mute", s.handleSetClientMute)
					r.Put("/name", s.handleSetClientName)
					r.Put("/latency", s.handleSetClientLatency)
				})
			})

			r.Get("/streams", s.handleListStreams)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.handleSystemStatus)
				r.Get("/grouping", s.handleGroupingStatus)
				r.Get("/audit", s.handleAuditLog)
				r.Post("/reconcile", s.handleReconcile)
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth answers unauthenticated liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
