package api

import (
	"net/http"
	"strings"

	"github.com/car-scanner/internal/errors"
)

// handleTrend returns monthly price aggregates for one make and model from
// the history store. Without the store the endpoint does not exist.
func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if s.trends == nil {
		respondError(w, http.StatusNotFound, "HISTORY_DISABLED", "Price history is not enabled", nil)
		return
	}

	make := strings.TrimSpace(r.URL.Query().Get("make"))
	if make == "" {
		respondCategorized(w, errors.NewMissingMakeError())
		return
	}
	model := strings.TrimSpace(r.URL.Query().Get("model"))

	months, err := queryInt(r, "months", 12)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if months < 1 || months > 60 {
		respondCategorized(w, errors.NewInvalidParameterError("months", "must be between 1 and 60"))
		return
	}

	points, err := s.trends.Trend(r.Context(), make, model, months)
	if err != nil {
		respondCategorized(w, errors.NewStorageError("load price trend", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"make":   make,
		"model":  model,
		"months": months,
		"points": points,
		"count":  len(points),
	})
}
