/**
 * @description
 * This file sets up the HTTP router for the storefront-service using go-chi/chi.
 * It wires the page, live-view and JSON API routes, applies logging, recovery,
 * CORS and session middleware, and exposes Prometheus metrics.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new Chi router and registers the storefront routes.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))
	r.Use(OptionalAuth(h.verifier))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Storefront service is healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// The live view holds its connection open, so it stays outside the timeout.
	r.Get("/live", h.handleLive)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/", h.handleHome)
		r.Post("/checkout", h.handleCheckoutForm)
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/dashboard-paid", h.handleDashboardPaid)

		r.Route("/api", func(r chi.Router) {
			r.Get("/products", h.handleListProducts)

			// Protected routes that require authentication
			r.Group(func(r chi.Router) {
				r.Use(RequireAuth)

				r.Post("/users/store", h.handleStoreUser)
				r.Get("/subscriptions/status", h.handleGetStatus)
				r.Post("/checkout", h.handleCreateCheckout)
			})
		})
	})

	return r
}
