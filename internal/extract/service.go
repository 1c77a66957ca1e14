// Package extract orchestrates one flyer extraction job: resolve the PDF,
// render its pages, extract products page by page and fan the results out to
// the card and persistence collaborators.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/metrics"
	"github.com/spherical/flyer-extractor/internal/observability"
	"github.com/spherical/flyer-extractor/internal/pricing"
)

// EventBuffer is a reasonable capacity for channels passed to Stream.
const EventBuffer = 100

// Status messages recorded on the job.
const (
	msgPending      = "In attesa di elaborazione."
	msgNoSource     = "Nessuna fonte PDF valida."
	msgNoPages      = "Nessuna immagine creata dal PDF."
	msgStart        = "Inizio analisi immagini..."
	msgPageFormat   = "Analizzando pagina %d..."
	msgPageDone     = "Pagina %d completata."
	msgCompleted    = "Elaborazione completata."
	msgFatalPrefix  = "Errore fatale: "
	snapshotMethod  = "Gemini Vision Extractor"
	defaultRetailer = "SUPERMERCATO"
)

// Invalidator is notified after products are persisted so cached catalog views can be dropped.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Dependencies are the collaborators of a single job. Renderer, Resolver and
// Extractor are required; the rest may be nil.
type Dependencies struct {
	Renderer    domain.Renderer
	Resolver    domain.SourceResolver
	Extractor   domain.PageExtractor
	Store       domain.ProductStore
	Cards       domain.CardStore
	Invalidator Invalidator
	Metrics     *metrics.Metrics
	Logger      *observability.Logger
}

// Options tunes a job run.
type Options struct {
	ImagesDir  string        // product cards and fallback pages
	ResultsDir string        // results_<job>.json snapshots; "" disables them
	PageDelay  time.Duration // pause between pages, not after the last
	Retailer   string        // used when the request names none
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Service runs a single extraction job. Build a fresh Service per job: the
// renderer owns a private temp dir and the extractor a private key rotation.
type Service struct {
	deps   Dependencies
	opts   Options
	pacer  *Pacer
	logger *observability.Logger
	events chan<- domain.StreamEvent
	now    func() time.Time
}

// NewService creates a job runner over the given collaborators.
func NewService(deps Dependencies, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = observability.Nop()
	}
	if opts.Retailer == "" {
		opts.Retailer = defaultRetailer
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		pacer:  NewPacer(opts.PageDelay, opts.Sleep),
		logger: deps.Logger.WithOperation("extract"),
		now:    time.Now,
	}
}

// Stream makes the service publish progress events on ch. Events are dropped
// rather than blocking the job when ch is full.
func (s *Service) Stream(ch chan<- domain.StreamEvent) *Service {
	s.events = ch
	return s
}

// run holds the mutable state of one Run call.
type run struct {
	job      domain.ExtractionJob
	req      domain.JobRequest
	logger   *observability.Logger
	products []domain.ProductRecord
}

// Run executes the job to completion. It never returns an error: every failure
// is reflected in the returned summary and in the job status.
func (s *Service) Run(ctx context.Context, req domain.JobRequest) (summary *domain.JobSummary) {
	if req.JobID == "" {
		req.JobID = fmt.Sprintf("%d", s.now().Unix())
	}
	if req.Retailer == "" {
		req.Retailer = s.opts.Retailer
	}

	r := &run{
		req:    req,
		logger: s.logger.WithJob(req.JobID).WithFlyer(req.Retailer, req.Source),
		job: domain.ExtractionJob{
			ID:        req.JobID,
			Status:    domain.JobPending,
			Message:   msgPending,
			Retailer:  req.Retailer,
			SourceURL: req.Source,
			CreatedAt: s.now(),
		},
		products: []domain.ProductRecord{},
	}
	start := s.now()

	defer func() {
		if rec := recover(); rec != nil {
			err := domain.FatalJobError(fmt.Sprint(rec), nil)
			r.logger.Error().Err(err).Msg("extraction job crashed")
			s.fail(ctx, r, msgFatalPrefix+fmt.Sprint(rec))
			summary = s.summary(r)
			summary.Products = []domain.ProductRecord{}
			summary.TotalProducts = 0
		}
		if err := s.deps.Renderer.Cleanup(); err != nil {
			r.logger.Warn().Err(err).Msg("temp cleanup failed")
		}
		s.deps.Metrics.IncJob(string(r.job.Status))
		r.logger.Info().
			Str("status", string(r.job.Status)).
			Int("products", len(r.products)).
			Dur("duration", s.now().Sub(start)).
			Msg("extraction job finished")
	}()

	r.logger.Info().Str("source", req.Source).Str("retailer", req.Retailer).Msg("extraction job started")
	s.emitEvent(domain.StreamEvent{Type: domain.EventStart, JobID: req.JobID, Payload: req.Source})
	s.updateStatus(ctx, r)

	s.process(ctx, r)
	s.writeSnapshot(r)

	return s.summary(r)
}

func (s *Service) process(ctx context.Context, r *run) {
	pdfPath, err := s.resolve(ctx, r)
	if err != nil {
		r.logger.Error().Err(err).Msg("no valid PDF source")
		s.emitError(r, err)
		s.fail(ctx, r, msgNoSource)
		return
	}

	pages, err := s.deps.Renderer.Convert(ctx, pdfPath)
	if err != nil || len(pages) == 0 {
		if err == nil {
			err = domain.RenderError("PDF produced no pages", nil)
		}
		r.logger.Error().Err(err).Msg("no pages rendered")
		s.emitError(r, err)
		s.fail(ctx, r, msgNoPages)
		return
	}

	total := len(pages)
	r.job.Status = domain.JobProcessing
	r.job.TotalPages = total
	r.job.Message = msgStart
	s.updateStatus(ctx, r)

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			r.logger.Warn().Err(err).Int("page", page.PageNumber).Msg("job canceled")
			s.emitError(r, err)
			s.fail(ctx, r, msgFatalPrefix+err.Error())
			return
		}

		r.job.Progress = (i + 1) * 100 / total
		r.job.Message = fmt.Sprintf(msgPageFormat, i+1)
		s.updateStatus(ctx, r)
		s.emitEvent(domain.StreamEvent{
			Type: domain.EventPageProcessing, JobID: r.job.ID,
			PageNumber: page.PageNumber, TotalPages: total,
		})

		found := s.processPage(ctx, r, page)

		r.job.Message = fmt.Sprintf(msgPageDone, i+1)
		s.updateStatus(ctx, r)
		s.emitEvent(domain.StreamEvent{
			Type: domain.EventPageComplete, JobID: r.job.ID,
			PageNumber: page.PageNumber, TotalPages: total, Products: found,
		})

		if i < total-1 {
			if err := s.pacer.Pause(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("pause interrupted")
			}
		}
	}

	r.job.Status = domain.JobCompleted
	r.job.Progress = 100
	r.job.Message = msgCompleted
	s.updateStatus(ctx, r)
	s.emitEvent(domain.StreamEvent{
		Type: domain.EventComplete, JobID: r.job.ID, TotalPages: total, Products: len(r.products),
		Payload: fmt.Sprintf("%d products from %d pages", len(r.products), total),
	})
}

// resolve places a downloaded PDF inside the renderer's temp dir so a single
// cleanup removes both.
func (s *Service) resolve(ctx context.Context, r *run) (string, error) {
	if s.deps.Resolver == nil {
		return "", domain.SourceUnavailableError("no source resolver configured", nil)
	}
	dir, err := s.deps.Renderer.TempDir()
	if err != nil {
		return "", err
	}
	kind := r.req.SourceType
	if kind == "" {
		kind = domain.SourceURL
	}
	return s.deps.Resolver.Resolve(ctx, r.req.Source, kind, dir, r.job.ID)
}

// processPage extracts one page and runs its side effects. It returns the
// number of products found.
func (s *Service) processPage(ctx context.Context, r *run, page domain.PageImage) int {
	logger := r.logger.WithPage(page.PageNumber, r.job.TotalPages)

	raw := s.deps.Extractor.Extract(ctx, page)
	if len(raw) == 0 {
		logger.Warn().Msg("no products extracted")
		s.deps.Metrics.IncPage("empty")
		s.preserveOriginal(r, page, logger)
		return 0
	}

	logger.Info().Int("products", len(raw)).Msg("products extracted")
	s.deps.Metrics.IncPage("products")
	s.deps.Metrics.AddProducts(len(raw))

	flyer := domain.FlyerEnrichment(r.req.Flyer)
	records := make([]domain.ProductRecord, 0, len(raw))
	for idx, item := range raw {
		rec := domain.NewProductRecord(item, page.PageNumber, r.job.ID, r.req.Retailer, pricing.NormalizeText)
		rec.Enrich(flyer)
		if r.req.Flyer == nil && r.req.SourceType != domain.SourceFile {
			rec.Enrich(domain.Enrichment{FlyerURL: r.req.Source})
		}
		if rec.PriceValue == 0 && rec.PriceText != "" {
			logger.Debug().Str("product", rec.Name).Price(rec.PriceText, rec.PriceValue).Msg("price not recognized")
		}
		rec.Enrich(domain.Enrichment{CardImage: s.saveCard(r, rec, page, idx+1, logger)})
		records = append(records, rec)
	}

	records = s.persist(ctx, r, records, logger)

	r.products = append(r.products, records...)
	r.job.TotalProducts = len(r.products)
	return len(records)
}

func (s *Service) saveCard(r *run, rec domain.ProductRecord, page domain.PageImage, index int, logger *observability.Logger) string {
	if s.deps.Cards == nil {
		return ""
	}
	path, err := s.deps.Cards.SaveCard(rec, page.ImagePath, s.opts.ImagesDir, domain.CardID{
		JobID: r.job.ID, Page: page.PageNumber, ProductIndex: index,
	})
	if err != nil {
		logger.Error().Err(err).Int("product_index", index).Msg("product card not saved")
		return ""
	}
	return path
}

// persist saves one page batch. On failure the records are kept without IDs.
func (s *Service) persist(ctx context.Context, r *run, records []domain.ProductRecord, logger *observability.Logger) []domain.ProductRecord {
	if s.deps.Store == nil {
		return records
	}
	saved, err := s.deps.Store.Save(ctx, r.job.ID, records)
	if err != nil {
		logger.Error().Err(err).Int("products", len(records)).Msg("products not persisted")
		return records
	}
	if s.deps.Invalidator != nil {
		s.deps.Invalidator.Invalidate(ctx)
	}
	return saved
}

func (s *Service) preserveOriginal(r *run, page domain.PageImage, logger *observability.Logger) {
	if s.deps.Cards == nil {
		return
	}
	if _, err := s.deps.Cards.SaveOriginal(page.ImagePath, s.opts.ImagesDir, r.job.ID, page.PageNumber); err != nil {
		logger.Error().Err(err).Msg("original page not preserved")
	}
}

func (s *Service) fail(ctx context.Context, r *run, message string) {
	r.job.Status = domain.JobFailed
	r.job.Progress = 0
	r.job.TotalProducts = 0
	r.job.Message = message
	s.updateStatus(ctx, r)
}

// updateStatus is best-effort: a store failure never interrupts the job.
func (s *Service) updateStatus(ctx context.Context, r *run) {
	r.job.UpdatedAt = s.now()
	if s.deps.Store == nil {
		return
	}
	// A canceled job still records its terminal state.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := s.deps.Store.UpdateStatus(ctx, r.job); err != nil {
		r.logger.Warn().Err(err).Str("status", string(r.job.Status)).Msg("job status not recorded")
	}
}

func (s *Service) summary(r *run) *domain.JobSummary {
	return &domain.JobSummary{
		JobID:         r.job.ID,
		Status:        r.job.Status,
		TotalProducts: len(r.products),
		Message:       r.job.Message,
		Products:      r.products,
	}
}

// snapshot is the on-disk results file of a job.
type snapshot struct {
	Timestamp     time.Time              `json:"timestamp"`
	Method        string                 `json:"method"`
	TotalProducts int                    `json:"total_products"`
	Products      []domain.ProductRecord `json:"products"`
}

// writeSnapshot stores results_<job>.json. Failures are logged only.
func (s *Service) writeSnapshot(r *run) {
	if s.opts.ResultsDir == "" {
		return
	}
	if err := os.MkdirAll(s.opts.ResultsDir, 0o755); err != nil {
		r.logger.Warn().Err(err).Msg("results directory not created")
		return
	}

	data, err := json.MarshalIndent(snapshot{
		Timestamp:     s.now(),
		Method:        snapshotMethod,
		TotalProducts: len(r.products),
		Products:      r.products,
	}, "", "  ")
	if err != nil {
		r.logger.Warn().Err(err).Msg("results not encoded")
		return
	}

	path := filepath.Join(s.opts.ResultsDir, fmt.Sprintf("results_%s.json", r.job.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("results not written")
		return
	}
	r.logger.Info().Str("path", path).Int("products", len(r.products)).Msg("results saved")
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(event domain.StreamEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = s.now()
	select {
	case s.events <- event:
	default:
		s.logger.Warn().Str("event", string(event.Type)).Msg("event channel full, dropping event")
	}
}

func (s *Service) emitError(r *run, err error) {
	s.emitEvent(domain.StreamEvent{Type: domain.EventError, JobID: r.job.ID, Payload: err.Error()})
}
