package comparison

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spherical/flyer-extractor/internal/cache"
	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

// CatalogKey is the cache key holding the full catalog snapshot.
const CatalogKey = "catalog:all"

// Service compares shopping lists against the persisted catalog.
type Service struct {
	reader domain.CatalogReader
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewService creates a comparison service. cacheClient may be nil.
func NewService(reader domain.CatalogReader, cacheClient cache.Client, ttl time.Duration, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		reader: reader,
		cache:  cacheClient,
		ttl:    ttl,
		logger: logger.WithOperation("compare"),
	}
}

// Compare runs the comparison for queries over the current catalog.
func (s *Service) Compare(ctx context.Context, queries []domain.CompareQuery) (*domain.CompareResult, error) {
	if len(queries) == 0 {
		return nil, domain.ValidationError("no items to compare", nil)
	}

	catalog, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}

	result := Compare(queries, catalog)
	s.logger.Debug().
		Int("queries", len(queries)).
		Int("catalog_size", len(catalog)).
		Float64("total", result.Total).
		Msg("comparison complete")

	return &result, nil
}

// Invalidate drops the cached catalog snapshot. Call it after every write.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CatalogKey); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate catalog cache")
	}
}

func (s *Service) catalog(ctx context.Context) ([]domain.ProductRecord, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, CatalogKey)
		switch {
		case err == nil:
			var records []domain.ProductRecord
			if jsonErr := json.Unmarshal(data, &records); jsonErr == nil {
				return records, nil
			}
			s.logger.Warn().Msg("discarding unreadable catalog cache entry")
		case !errors.Is(err, cache.ErrCacheMiss):
			s.logger.Warn().Err(err).Msg("catalog cache read failed")
		}
	}

	records, err := s.reader.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(records); err == nil {
			if err := s.cache.Set(ctx, CatalogKey, data, s.ttl); err != nil {
				s.logger.Warn().Err(err).Msg("catalog cache write failed")
			}
		}
	}

	return records, nil
}
