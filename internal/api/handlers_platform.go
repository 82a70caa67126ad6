package api

import (
	"net/http"

	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/models"
)

// handleListPlatforms returns the seeded platforms, optionally filtered by
// type (auction or used_car).
func (s *Server) handleListPlatforms(w http.ResponseWriter, r *http.Request) {
	platformType := r.URL.Query().Get("type")
	switch models.PlatformType(platformType) {
	case "", models.PlatformTypeAuction, models.PlatformTypeUsedCar:
	default:
		respondCategorized(w, errors.NewInvalidParameterError("type", "must be auction or used_car"))
		return
	}

	rows, err := s.platforms.List(r.Context(), platformType)
	if err != nil {
		respondCategorized(w, errors.NewStorageError("list platforms", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"platforms": rows,
		"count":     len(rows),
	})
}
