package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rkm/stac-catalog/internal/metrics"
)

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse) // X-Request-ID on responses
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "If-Match"},
		ExposedHeaders:   []string{"Link", "ETag", "Location", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// STAC API surface
	r.Get("/", h.LandingPage)
	r.Get("/conformance", h.Conformance)
	r.Get("/queryables", h.Queryables)

	r.Route("/collections", func(r chi.Router) {
		r.Get("/", h.Collections)
		r.Post("/", h.CreateCollection)

		r.Route("/{collectionId}", func(r chi.Router) {
			r.Get("/", h.Collection)
			r.Put("/", h.UpdateCollection)
			r.Delete("/", h.DeleteCollection)
			r.Get("/queryables", h.Queryables)

			r.Route("/items", func(r chi.Router) {
				r.Get("/", h.Items)
				r.Post("/", h.CreateItem)
				r.Get("/{itemId}", h.Item)
				r.Put("/{itemId}", h.UpdateItem)
				r.Delete("/{itemId}", h.DeleteItem)
			})
		})
	})

	r.Route("/search", func(r chi.Router) {
		r.Get("/", h.Search)
		r.Post("/", h.Search)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	return r
}
