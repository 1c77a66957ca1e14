// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/flyer-extractor/cmd/flyer-api/handlers"
	"github.com/spherical/flyer-extractor/cmd/flyer-api/middleware"
	"github.com/spherical/flyer-extractor/internal/config"
	"github.com/spherical/flyer-extractor/internal/observability"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, app *App, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.TraceID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"flyer-extractor"}`))
	})

	if cfg.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", app.Metrics.Handler())
	}

	extraction := handlers.NewExtractionHandler(logger, app.Factory, app.Flyers, cfg.Extraction.DefaultRetailer)
	catalog := handlers.NewCatalogHandler(logger, app.Catalog, app.Comparison, cfg.Extraction.DefaultRetailer)
	comparison := handlers.NewComparisonHandler(logger, app.Comparison)

	// Extraction runs for minutes and is bounded by the server write timeout only.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.Server.ExtractRatePerMinute, cfg.Server.ExtractBurst, logger))
		r.Post("/extract", extraction.Extract)
		r.Get("/extract_all", extraction.ExtractAll)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

		r.Get("/flyers", extraction.Flyers)

		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", catalog.Job)
			r.Get("/products", catalog.JobProducts)
		})

		r.Get("/products", catalog.Products)
		r.Get("/products/export", catalog.Export)
		r.Get("/search", catalog.Search)
		r.Get("/supermarkets", catalog.Supermarkets)
		r.Get("/results/latest", catalog.LatestResults)
		r.Post("/import", catalog.Import)
		r.Post("/compare", comparison.Compare)
	})

	images := http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.Extraction.ImagesDir)))
	r.Handle("/images/*", images)

	return r
}
