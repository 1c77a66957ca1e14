package main

import (
	"context"
	"errors"

	"github.com/spherical/flyer-extractor/cmd/flyer-api/handlers"
	"github.com/spherical/flyer-extractor/internal/cache"
	"github.com/spherical/flyer-extractor/internal/cards"
	"github.com/spherical/flyer-extractor/internal/comparison"
	"github.com/spherical/flyer-extractor/internal/config"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/extract"
	"github.com/spherical/flyer-extractor/internal/flyers"
	"github.com/spherical/flyer-extractor/internal/metrics"
	"github.com/spherical/flyer-extractor/internal/observability"
	"github.com/spherical/flyer-extractor/internal/pdf"
	"github.com/spherical/flyer-extractor/internal/storage"
)

// App holds the long-lived services shared by all requests.
type App struct {
	Catalog    domain.Catalog
	Cache      cache.Client
	Comparison *comparison.Service
	Factory    extract.JobFactory // nil without vision API keys
	Flyers     handlers.FlyerSource
	Metrics    *metrics.Metrics
}

// NewApp wires storage, cache and the extraction pipeline from cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	catalog, err := storage.New(ctx, storage.OptionsFromConfig(cfg, logger))
	if err != nil {
		return nil, err
	}

	cacheClient, err := cache.FromConfig(cfg.Cache)
	if err != nil {
		_ = catalog.Close()
		return nil, err
	}

	app := &App{
		Catalog: catalog,
		Cache:   cacheClient,
		Flyers:  flyers.NewScraper(flyers.ConfigFrom(cfg.Scraper), logger),
	}
	if cfg.Observability.MetricsEnabled {
		app.Metrics = metrics.New()
	}
	app.Comparison = comparison.NewService(catalog, cacheClient, cfg.Cache.TTL, logger)

	if !cfg.HasAPIKeys() {
		logger.Warn().Msg("No vision API key configured: extraction endpoints are disabled")
		return app, nil
	}

	factory, err := extract.NewFactory(extract.ConfigFromSettings(cfg), extract.Dependencies{
		Resolver:    pdf.NewDownloader(nil, cfg.Extraction.DownloadTimeout, logger),
		Store:       catalog,
		Cards:       cards.NewFileStore(),
		Invalidator: app.Comparison,
		Metrics:     app.Metrics,
		Logger:      logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Factory = factory

	return app, nil
}

// Close releases the store and cache connections.
func (a *App) Close() error {
	return errors.Join(a.Catalog.Close(), a.Cache.Close())
}
