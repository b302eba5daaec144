package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
// An empty allowedOrigins list disables CORS handling.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Route("/contracts/{contractID}", func(r chi.Router) {
				r.Use(ContractMiddleware)
				r.Post("/synthesize", h.Synthesize)
				r.Get("/rules", h.ListRules)
				r.Get("/term-mappings", h.ListTermMappings)
				r.Post("/term-mappings", h.CreateTermMapping)
				r.Get("/terminology", h.Terminology)
			})

			r.Get("/rules/{id}", h.GetRule)
			r.Patch("/rules/{id}/review", h.ReviewRule)
			r.Patch("/term-mappings/{id}", h.UpdateTermMapping)
		})
	})

	return r
}
