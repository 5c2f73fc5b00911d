package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/grills", func(r chi.Router) {
			r.Get("/", s.handleListGrills)

			r.Route("/{serial}", func(r chi.Router) {
				r.Get("/", s.handleGetGrill)
				r.Put("/connection", s.handleSetConnection)
			})
		})

		r.Get("/diagnostics", s.handleGlobalDiagnostics)

		r.Route("/debug", func(r chi.Router) {
			r.Get("/", s.handleGetDebug)
			r.Put("/", s.handleSetDebug)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status with a grill summary.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"grills":         s.grills.Summary(),
	})
}
