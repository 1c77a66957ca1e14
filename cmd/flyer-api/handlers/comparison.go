package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/spherical/flyer-extractor/internal/domain"
	"github.com/spherical/flyer-extractor/internal/observability"
)

// Comparer compares a shopping list against the catalog.
type Comparer interface {
	Compare(ctx context.Context, queries []domain.CompareQuery) (*domain.CompareResult, error)
}

// ComparisonHandler handles shopping list comparisons.
type ComparisonHandler struct {
	logger   *observability.Logger
	comparer Comparer
}

// NewComparisonHandler creates a new comparison handler.
func NewComparisonHandler(logger *observability.Logger, comparer Comparer) *ComparisonHandler {
	return &ComparisonHandler{
		logger:   logger,
		comparer: comparer,
	}
}

// CompareRequestDTO is the body of POST /compare.
type CompareRequestDTO struct {
	Items []domain.CompareQuery `json:"items"`
}

// Compare handles POST /compare.
func (h *ComparisonHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.logger.WithContext(r.Context()).Info().
		Int("items", len(req.Items)).
		Msg("Comparison query received")

	result, err := h.comparer.Compare(r.Context(), req.Items)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithContext(r.Context()).Error().Err(err).Msg("comparison failed")
		}
		writeError(w, status, "comparison failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
