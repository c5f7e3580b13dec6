package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
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

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/metrics", s.handleMetrics)

			r.Route("/entries", func(r chi.Router) {
				r.Get("/", s.handleListEntries)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetEntry)
					r.Get("/snapshot", s.handleGetSnapshot)
					r.Post("/refresh", s.handleRefreshEntry)
					r.Patch("/options", s.handleUpdateOptions)
				})
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/stats", s.handleDeviceStats)
				r.Get("/{id}", s.handleGetDevice)
			})

			r.Route("/services", func(r chi.Router) {
				r.Get("/", s.handleListServices)
				r.Post("/{name}", s.handleCallService)
				r.Get("/calls", s.handleListServiceCalls)
			})
		})
	})

	return r
}

// handleHealth reports "degraded" while any entry is not polling or its last
// pass failed. Per-entry detail is only available on /entries.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	statuses := s.host.Statuses()
	status := "ok"
	for _, st := range statuses {
		if st.State != coordinator.StatePolling.String() || st.LastError != "" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"entries": len(statuses),
	})
}
