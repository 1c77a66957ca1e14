package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/extract"
	"github.com/spherical/flyer-extractor/internal/observability"
)

const msgMissingKey = "Nessuna chiave API Gemini configurata (GEMINI_API_KEY)."

// FlyerSource lists the flyers currently published by the retailer.
type FlyerSource interface {
	Scrape(ctx context.Context) ([]domain.Flyer, error)
}

// ExtractionHandler runs extraction jobs synchronously.
type ExtractionHandler struct {
	logger   *observability.Logger
	factory  extract.JobFactory
	flyers   FlyerSource
	retailer string
	now      func() time.Time
}

// NewExtractionHandler creates a new extraction handler. factory is nil when
// no vision API key is configured; extraction routes then answer 500.
func NewExtractionHandler(logger *observability.Logger, factory extract.JobFactory, flyers FlyerSource, retailer string) *ExtractionHandler {
	return &ExtractionHandler{
		logger:   logger,
		factory:  factory,
		flyers:   flyers,
		retailer: retailer,
		now:      time.Now,
	}
}

// ExtractRequestDTO is the body of POST /extract.
type ExtractRequestDTO struct {
	URL      string `json:"url"`
	Retailer string `json:"supermercato_nome"`
}

// ExtractResponseDTO is the result of one extraction job.
type ExtractResponseDTO struct {
	JobID         string                 `json:"job_id"`
	Status        domain.JobStatus       `json:"status"`
	Message       string                 `json:"message,omitempty"`
	TotalProducts int                    `json:"total_products"`
	Products      []domain.ProductRecord `json:"products"`
}

// JobDTO is a product-less job summary.
type JobDTO struct {
	JobID         string           `json:"job_id"`
	Status        domain.JobStatus `json:"status"`
	Message       string           `json:"message,omitempty"`
	TotalProducts int              `json:"total_products"`
}

// ExtractAllResponseDTO is the result of GET /extract_all.
type ExtractAllResponseDTO struct {
	Count    int                    `json:"count"`
	Jobs     []JobDTO               `json:"jobs"`
	Products []domain.ProductRecord `json:"products"`
}

// FlyersResponseDTO is the result of GET /flyers.
type FlyersResponseDTO struct {
	Count  int            `json:"count"`
	Flyers []domain.Flyer `json:"flyers"`
}

// Extract handles POST /extract.
func (h *ExtractionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required", "")
		return
	}
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL", req.URL)
		return
	}

	if h.factory == nil {
		writeError(w, http.StatusInternalServerError, msgMissingKey, "")
		return
	}

	jobID := fmt.Sprintf("%d_%s", h.now().Unix(), uuid.NewString()[:8])
	svc, err := h.factory.NewJob(jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("extraction job not created")
		writeError(w, statusFor(err), "failed to start extraction", err.Error())
		return
	}

	h.logger.WithContext(r.Context()).Info().
		Str("job_id", jobID).
		Str("url", req.URL).
		Str("retailer", req.Retailer).
		Msg("Extraction requested")

	summary := svc.Run(r.Context(), domain.JobRequest{
		JobID:      jobID,
		Source:     req.URL,
		SourceType: domain.SourceURL,
		Retailer:   h.retailerOr(req.Retailer),
	})

	writeJSON(w, http.StatusOK, ExtractResponseDTO{
		JobID:         summary.JobID,
		Status:        summary.Status,
		Message:       summary.Message,
		TotalProducts: summary.TotalProducts,
		Products:      summary.Products,
	})
}

// ExtractAll handles GET /extract_all: every flyer on the index page is
// extracted in turn.
func (h *ExtractionHandler) ExtractAll(w http.ResponseWriter, r *http.Request) {
	limit := extract.NoLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", v)
			return
		}
		limit = n
	}

	if h.factory == nil {
		writeError(w, http.StatusInternalServerError, msgMissingKey, "")
		return
	}

	flyers := h.scrape(r.Context())
	result := extract.NewBatchRunner(h.factory, h.logger).
		RunAll(r.Context(), flyers, limit, h.retailerOr(r.URL.Query().Get("supermercato_nome")))

	resp := ExtractAllResponseDTO{
		Count:    len(result.Products),
		Jobs:     make([]JobDTO, 0, len(result.Jobs)),
		Products: result.Products,
	}
	for _, j := range result.Jobs {
		resp.Jobs = append(resp.Jobs, JobDTO{
			JobID:         j.JobID,
			Status:        j.Status,
			Message:       j.Message,
			TotalProducts: j.TotalProducts,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Flyers handles GET /flyers.
func (h *ExtractionHandler) Flyers(w http.ResponseWriter, r *http.Request) {
	flyers := h.scrape(r.Context())
	writeJSON(w, http.StatusOK, FlyersResponseDTO{Count: len(flyers), Flyers: flyers})
}

// scrape never fails: an unreachable index yields no flyers.
func (h *ExtractionHandler) scrape(ctx context.Context) []domain.Flyer {
	if h.flyers == nil {
		return []domain.Flyer{}
	}
	flyers, err := h.flyers.Scrape(ctx)
	if err != nil {
		h.logger.WithContext(ctx).Warn().Err(err).Msg("flyer index unavailable")
		return []domain.Flyer{}
	}
	return flyers
}

func (h *ExtractionHandler) retailerOr(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return h.retailer
}
