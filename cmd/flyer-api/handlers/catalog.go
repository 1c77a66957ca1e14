package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/export"
	"github.com/spherical/flyer-extractor/internal/extract"
	"github.com/spherical/flyer-extractor/internal/observability"
	"github.com/spherical/flyer-extractor/internal/pricing"
)

const (
	msgImported      = "Importazione completata."
	exportFilename   = "prodotti.xlsx"
	defaultSearchMax = 50
)

// CatalogHandler serves the persisted catalog and accepts product imports.
type CatalogHandler struct {
	logger      *observability.Logger
	catalog     domain.Catalog
	invalidator extract.Invalidator
	retailer    string
}

// NewCatalogHandler creates a new catalog handler. invalidator may be nil.
func NewCatalogHandler(logger *observability.Logger, catalog domain.Catalog, invalidator extract.Invalidator, retailer string) *CatalogHandler {
	return &CatalogHandler{
		logger:      logger,
		catalog:     catalog,
		invalidator: invalidator,
		retailer:    retailer,
	}
}

// ProductsResponseDTO wraps a plain product list.
type ProductsResponseDTO struct {
	JobID    string                 `json:"job_id,omitempty"`
	Count    int                    `json:"count"`
	Products []domain.ProductRecord `json:"products"`
}

// LatestResultsDTO is the result of GET /results/latest.
type LatestResultsDTO struct {
	Job           *domain.ExtractionJob  `json:"job"`
	TotalProducts int                    `json:"total_products"`
	Products      []domain.ProductRecord `json:"products"`
}

// ImportProductDTO is one product of an import request.
type ImportProductDTO struct {
	domain.RawProduct
	Page      int    `json:"pagina"`
	CardImage string `json:"immagine_prodotto_card,omitempty"`
}

// ImportRequestDTO is the body of POST /import.
type ImportRequestDTO struct {
	JobID         string             `json:"job_id,omitempty"`
	Retailer      string             `json:"supermercato_nome,omitempty"`
	FlyerURL      string             `json:"volantino_url,omitempty"`
	FlyerName     string             `json:"volantino_name,omitempty"`
	FlyerValidity string             `json:"volantino_validita,omitempty"`
	Products      []ImportProductDTO `json:"products"`
}

// Job handles GET /jobs/{jobID}.
func (h *CatalogHandler) Job(w http.ResponseWriter, r *http.Request) {
	job, err := h.catalog.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, statusFor(err), "job not found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// JobProducts handles GET /jobs/{jobID}/products.
func (h *CatalogHandler) JobProducts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	products, err := h.catalog.JobProducts(r.Context(), jobID)
	if err != nil {
		h.internalError(r.Context(), w, "failed to load job products", err)
		return
	}
	writeJSON(w, http.StatusOK, ProductsResponseDTO{JobID: jobID, Count: len(products), Products: products})
}

// Products handles GET /products.
func (h *CatalogHandler) Products(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	page, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		h.internalError(r.Context(), w, "failed to list products", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Export handles GET /products/export with the whole catalog as a workbook.
func (h *CatalogHandler) Export(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.All(r.Context())
	if err != nil {
		h.internalError(r.Context(), w, "failed to load products", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, products); err != nil {
		h.internalError(r.Context(), w, "failed to build workbook", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// Search handles GET /search.
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required", "")
		return
	}

	limit := defaultSearchMax
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", v)
			return
		}
		limit = n
	}

	products, err := h.catalog.Search(r.Context(), q, limit)
	if err != nil {
		h.internalError(r.Context(), w, "search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ProductsResponseDTO{Count: len(products), Products: products})
}

// Supermarkets handles GET /supermarkets.
func (h *CatalogHandler) Supermarkets(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalog.Retailers(r.Context())
	if err != nil {
		h.internalError(r.Context(), w, "failed to list supermarkets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supermarkets": names})
}

// LatestResults handles GET /results/latest: the most recently updated job
// and its products.
func (h *CatalogHandler) LatestResults(w http.ResponseWriter, r *http.Request) {
	job, err := h.catalog.LatestJob(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "no results available", err.Error())
		return
	}

	products, err := h.catalog.JobProducts(r.Context(), job.ID)
	if err != nil {
		h.internalError(r.Context(), w, "failed to load job products", err)
		return
	}
	writeJSON(w, http.StatusOK, LatestResultsDTO{Job: job, TotalProducts: len(products), Products: products})
}

// Import handles POST /import: products extracted elsewhere are normalized
// and stored under a completed job.
func (h *CatalogHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ImportRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Products) == 0 {
		writeError(w, http.StatusBadRequest, "products must not be empty", "")
		return
	}

	if req.JobID == "" {
		req.JobID = "import_" + uuid.NewString()
	}
	retailer := strings.TrimSpace(req.Retailer)
	if retailer == "" {
		retailer = h.retailer
	}

	flyer := domain.Enrichment{FlyerURL: req.FlyerURL, FlyerName: req.FlyerName, FlyerValidity: req.FlyerValidity}
	records := make([]domain.ProductRecord, 0, len(req.Products))
	for _, p := range req.Products {
		page := p.Page
		if page < 1 {
			page = 1
		}
		rec := domain.NewProductRecord(p.RawProduct, page, req.JobID, retailer, pricing.NormalizeText)
		rec.Enrich(flyer)
		rec.Enrich(domain.Enrichment{CardImage: p.CardImage})
		records = append(records, rec)
	}

	saved, err := h.catalog.Save(ctx, req.JobID, records)
	if err != nil {
		h.internalError(ctx, w, "failed to store products", err)
		return
	}

	job := domain.ExtractionJob{
		ID:            req.JobID,
		Status:        domain.JobCompleted,
		Progress:      100,
		TotalProducts: len(saved),
		Message:       msgImported,
		Retailer:      retailer,
		SourceURL:     req.FlyerURL,
	}
	if err := h.catalog.UpdateStatus(ctx, job); err != nil {
		h.logger.WithContext(ctx).Warn().Err(err).Str("job_id", req.JobID).Msg("import status not recorded")
	}
	if h.invalidator != nil {
		h.invalidator.Invalidate(ctx)
	}

	h.logger.WithContext(ctx).Info().
		Str("job_id", req.JobID).
		Int("products", len(saved)).
		Msg("Products imported")

	writeJSON(w, http.StatusCreated, ExtractResponseDTO{
		JobID:         req.JobID,
		Status:        domain.JobCompleted,
		Message:       msgImported,
		TotalProducts: len(saved),
		Products:      saved,
	})
}

func (h *CatalogHandler) internalError(ctx context.Context, w http.ResponseWriter, message string, err error) {
	h.logger.WithContext(ctx).Error().Err(err).Msg(message)
	writeError(w, statusFor(err), message, err.Error())
}

// parseFilter reads the listing parameters of GET /products.
func parseFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		Retailer: strings.TrimSpace(q.Get("supermarket")),
		Brand:    strings.TrimSpace(q.Get("marca")),
		Category: strings.TrimSpace(q.Get("categoria")),
	}

	var err error
	if filter.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = intParam(q.Get("page_size"), "page_size"); err != nil {
		return filter, err
	}
	if filter.PriceMin, err = floatParam(q.Get("price_min"), "price_min"); err != nil {
		return filter, err
	}
	if filter.PriceMax, err = floatParam(q.Get("price_max"), "price_max"); err != nil {
		return filter, err
	}
	return filter, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, domain.ValidationError(name+" must be a positive integer", err)
	}
	return n, nil
}

func floatParam(v, name string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil {
		return nil, domain.ValidationError(name+" must be a number", err)
	}
	return &f, nil
}
