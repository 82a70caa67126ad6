package api

import (
	"net/http"
	"strings"

	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/stats"
)

// comparisonRequest selects stored used-car listings to compare across
// markets. Unlike a search it never scrapes; it reads what prior jobs wrote.
type comparisonRequest struct {
	Make     string `json:"make"`
	Model    string `json:"model,omitempty"`
	YearFrom int    `json:"year_from,omitempty"`
	YearTo   int    `json:"year_to,omitempty"`
}

// comparisonResponse pairs the criteria with the cross-market statistics.
type comparisonResponse struct {
	Make            string    `json:"make"`
	Model           string    `json:"model,omitempty"`
	YearFrom        int       `json:"yearFrom,omitempty"`
	YearTo          int       `json:"yearTo,omitempty"`
	USAListings     int       `json:"usaListings"`
	GermanyListings int       `json:"germanyListings"`
	Comparison      stats.Map `json:"comparison"`
}

// handleComparison compares USA and Germany used-car prices for one make
// and model, converting EUR prices at the current exchange rate.
func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	var req comparisonRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON", nil)
		return
	}

	req.Make = strings.TrimSpace(req.Make)
	if req.Make == "" {
		respondCategorized(w, errors.NewMissingMakeError())
		return
	}
	if err := validateYearRange(req.YearFrom, req.YearTo); err != nil {
		respondCategorized(w, err)
		return
	}

	platforms, err := s.platforms.List(r.Context(), string(models.PlatformTypeUsedCar))
	if err != nil {
		respondCategorized(w, errors.NewStorageError("list platforms", err))
		return
	}

	var usaIDs, germanyIDs []int
	for _, p := range platforms {
		switch p.Region {
		case models.RegionUSA:
			usaIDs = append(usaIDs, p.ID)
		case models.RegionGermany:
			germanyIDs = append(germanyIDs, p.ID)
		}
	}

	model := strings.TrimSpace(req.Model)
	usaRows, err := s.listings.GetUsedCarByCriteria(r.Context(), usaIDs, req.Make, model, req.YearFrom, req.YearTo)
	if err != nil {
		respondCategorized(w, errors.NewStorageError("load usa listings", err))
		return
	}
	germanyRows, err := s.listings.GetUsedCarByCriteria(r.Context(), germanyIDs, req.Make, model, req.YearFrom, req.YearTo)
	if err != nil {
		respondCategorized(w, errors.NewStorageError("load germany listings", err))
		return
	}

	// The rate client caches and falls back internally, so this never fails.
	eurUsd := s.rates.EURUSD(r.Context())

	respondJSON(w, http.StatusOK, comparisonResponse{
		Make:            req.Make,
		Model:           model,
		YearFrom:        req.YearFrom,
		YearTo:          req.YearTo,
		USAListings:     len(usaRows),
		GermanyListings: len(germanyRows),
		Comparison:      stats.ComputeComparisonStats(usedCarValues(usaRows), usedCarValues(germanyRows), eurUsd),
	})
}

// usedCarValues flattens row pointers for the stats functions.
func usedCarValues(rows []*models.UsedCarListing) []models.UsedCarListing {
	values := make([]models.UsedCarListing, 0, len(rows))
	for _, l := range rows {
		values = append(values, *l)
	}
	return values
}
