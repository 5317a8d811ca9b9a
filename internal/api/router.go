package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/climalert/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.Get("/healthz", s.healthHandler.Health)
	r.Get("/livez", s.healthHandler.Live)
	r.Get("/readyz", s.healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/subscribe", s.handleSubscribe)
		r.Post("/disconnect", s.handleDisconnect)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Delete("/", s.handleClearHistory)
		})

		r.Put("/notifications/{id}/status", s.handleSetStatus)
		r.Get("/alerts/stream", s.handleAlertStream)
	})

	return r
}
