package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

// BatchResult aggregates a sequential run over several flyers.
type BatchResult struct {
	Jobs     []*domain.JobSummary   `json:"jobs"`
	Products []domain.ProductRecord `json:"products"`
}

// BatchRunner extracts a list of flyers one after the other.
type BatchRunner struct {
	factory JobFactory
	logger  *observability.Logger
	now     func() time.Time
}

// NewBatchRunner creates a batch runner over factory.
func NewBatchRunner(factory JobFactory, logger *observability.Logger) *BatchRunner {
	if logger == nil {
		logger = observability.Nop()
	}
	return &BatchRunner{
		factory: factory,
		logger:  logger.WithOperation("extract_all"),
		now:     time.Now,
	}
}

// NoLimit makes RunAll extract every flyer.
const NoLimit = -1

// RunAll extracts the first limit flyers sequentially; a negative limit means
// all of them and zero means none. Every product carries the name, validity
// and URL of the flyer it came from.
func (b *BatchRunner) RunAll(ctx context.Context, flyers []domain.Flyer, limit int, retailer string) *BatchResult {
	if limit >= 0 && limit < len(flyers) {
		flyers = flyers[:limit]
	}

	result := &BatchResult{
		Jobs:     make([]*domain.JobSummary, 0, len(flyers)),
		Products: []domain.ProductRecord{},
	}

	for i := range flyers {
		if err := ctx.Err(); err != nil {
			b.logger.Warn().Err(err).Int("remaining", len(flyers)-i).Msg("batch canceled")
			break
		}

		flyer := flyers[i]
		jobID := fmt.Sprintf("service_%d_%d", b.now().Unix(), i+1)

		svc, err := b.factory.NewJob(jobID)
		if err != nil {
			b.logger.Error().Err(err).Str("job_id", jobID).Msg("job not created")
			result.Jobs = append(result.Jobs, &domain.JobSummary{
				JobID: jobID, Status: domain.JobFailed, Message: err.Error(), Products: []domain.ProductRecord{},
			})
			continue
		}

		summary := svc.Run(ctx, domain.JobRequest{
			JobID:      jobID,
			Source:     flyer.URL,
			SourceType: domain.SourceURL,
			Retailer:   retailer,
			Flyer:      &flyer,
		})
		result.Jobs = append(result.Jobs, summary)
		result.Products = append(result.Products, summary.Products...)
	}

	b.logger.Info().Int("flyers", len(result.Jobs)).Int("products", len(result.Products)).Msg("batch finished")
	return result
}
