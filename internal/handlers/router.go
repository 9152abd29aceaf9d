package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(h *Handler, logger zerolog.Logger, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(Metrics)

	// Middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	r.Get("/health", h.HealthCheck)

	// Page routes, scoped to the browser's device cookie
	r.Group(func(r chi.Router) {
		r.Use(Device)

		r.Get("/", h.Index)
		r.Get("/ws", h.Live)
		r.Post("/session", h.SetUsername)
		r.Post("/session/logout", h.Logout)
		r.Post("/transmissions", h.Post)
		r.Get("/transmissions/{id}/delete", h.ConfirmDelete)
		r.Post("/transmissions/{id}/delete", h.Delete)
		r.Post("/transmissions/delete/cancel", h.CancelDelete)
	})

	// API routes
	r.Route("/api/transmissions", func(r chi.Router) {
		r.Get("/", h.ListTransmissions)
		r.Post("/", h.PostTransmission)
		r.Get("/stream", h.Stream)
		r.Get("/{id}", h.GetTransmission)
		r.Delete("/{id}", h.DeleteTransmission)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	return r
}
