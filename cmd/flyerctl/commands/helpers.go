package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spherical/flyer-extractor/internal/cache"
	"github.com/spherical/flyer-extractor/internal/comparison"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/storage"
)

func (e *environment) openCatalog(ctx context.Context) (domain.Catalog, error) {
	catalog, err := storage.New(ctx, storage.OptionsFromConfig(e.cfg, e.logger))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return catalog, nil
}

// comparisonService shares the API cache when it is reachable so writes made
// here invalidate the server's catalog snapshot. The returned func closes the cache.
func (e *environment) comparisonService(catalog domain.Catalog) (*comparison.Service, func()) {
	client, err := cache.FromConfig(e.cfg.Cache)
	if err != nil {
		e.logger.Warn().Err(err).Msg("cache unavailable, continuing without it")
		return comparison.NewService(catalog, nil, 0, e.logger), func() {}
	}
	return comparison.NewService(catalog, client, e.cfg.Cache.TTL, e.logger), func() { _ = client.Close() }
}

// sourceOf classifies an extract argument as a URL or a local PDF file.
func sourceOf(arg string) (string, domain.SourceType, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg, domain.SourceURL, nil
	}

	path, err := filepath.Abs(arg)
	if err != nil {
		return "", "", domain.ValidationError("invalid path "+arg, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", "", domain.SourceUnavailableError("PDF not found: "+arg, err)
	}
	if info.IsDir() {
		return "", "", domain.ValidationError(arg+" is a directory", nil)
	}
	return path, domain.SourceFile, nil
}

// parseItem reads a shopping list line written as "nome|marca|qty".
// Brand and quantity are optional; quantity defaults to 1.
func parseItem(s string) (domain.CompareQuery, error) {
	parts := strings.SplitN(s, "|", 3)
	q := domain.CompareQuery{Name: strings.TrimSpace(parts[0]), Quantity: 1}
	if q.Name == "" {
		return q, domain.ValidationError(fmt.Sprintf("item %q has no name", s), nil)
	}
	if len(parts) > 1 {
		q.Brand = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || n < 1 {
			return q, domain.ValidationError(fmt.Sprintf("item %q has an invalid quantity", s), err)
		}
		q.Quantity = n
	}
	return q, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
