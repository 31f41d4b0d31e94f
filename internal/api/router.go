package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/api/middleware"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/handlers"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

// NewRouter creates and configures the HTTP router driving the messaging
// core. Identity is resolved upstream; every non-health route requires it.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, broker store.Broker) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(broker, logger)
	r.Use(limiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID", "X-Username"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no identity required)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		// Live connection
		r.Get("/ws", h.Connect)

		// Messages
		r.Post("/messages", h.SendMessage)
		r.Delete("/messages/{id}", h.DeleteMessage)
		r.Post("/messages/{id}/restore", h.RestoreMessage)
		r.Get("/conversations/{peerID}", h.History)
		r.Post("/conversations/{peerID}/read", h.MarkRead)
		r.Get("/find", h.Search)

		// Calls
		r.Post("/calls", h.StartCall)
		r.Get("/calls", h.CallHistory)
		r.Post("/calls/{id}/accept", h.AcceptCall)
		r.Post("/calls/{id}/reject", h.RejectCall)
		r.Post("/calls/{id}/cancel", h.CancelCall)
		r.Post("/calls/{id}/end", h.EndCall)

		// Presence
		r.Get("/presence/{id}", h.GetPresence)
		r.Post("/presence", h.SetStatus)
		r.Post("/typing", h.SetTyping)
	})

	// Maintenance surface; deployments fence this off at the proxy.
	r.Group(func(r chi.Router) {
		r.Post("/maintenance/purge", h.PurgeDeleted)
		r.Post("/maintenance/calls/{id}/missed", h.MissCall)
	})

	return r
}
