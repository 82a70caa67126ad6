package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/models"
)

// watchRequest is the body for saving a watch-list search.
type watchRequest struct {
	Make          string   `json:"make"`
	Model         string   `json:"model,omitempty"`
	YearFrom      int      `json:"year_from,omitempty"`
	YearTo        int      `json:"year_to,omitempty"`
	Platforms     []string `json:"platforms"`
	IntervalHours int      `json:"interval_hours,omitempty"`
}

// handleCreateWatch saves a search for periodic rescanning.
func (s *Server) handleCreateWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
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
	if len(req.Platforms) == 0 {
		respondCategorized(w, errors.NewInvalidParameterError("platforms", "at least one platform is required"))
		return
	}
	// Mixed kinds are allowed here; the scheduler types the job when it runs.
	for _, key := range req.Platforms {
		if _, ok := s.registry.Get(key); !ok {
			respondCategorized(w, errors.NewUnknownPlatformError(key))
			return
		}
	}
	if req.IntervalHours < 0 {
		respondCategorized(w, errors.NewInvalidParameterError("interval_hours", "must be at least 1"))
		return
	}
	interval := req.IntervalHours
	if interval == 0 {
		interval = 24
	}

	entry := &models.WatchEntry{
		Make:          req.Make,
		Platforms:     strings.Join(req.Platforms, ","),
		IntervalHours: interval,
		IsActive:      true,
	}
	if model := strings.TrimSpace(req.Model); model != "" {
		entry.Model = &model
	}
	if req.YearFrom != 0 {
		yearFrom := req.YearFrom
		entry.YearFrom = &yearFrom
	}
	if req.YearTo != 0 {
		yearTo := req.YearTo
		entry.YearTo = &yearTo
	}

	if err := s.watches.Create(r.Context(), entry); err != nil {
		respondCategorized(w, errors.NewStorageError("create watch entry", err))
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}

// handleListWatches returns all saved watch entries, newest first.
func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	rows, err := s.watches.List(r.Context())
	if err != nil {
		respondCategorized(w, errors.NewStorageError("list watch entries", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": rows,
		"count":   len(rows),
	})
}

// handleDeleteWatch removes a watch entry.
func (s *Server) handleDeleteWatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id < 1 {
		respondCategorized(w, errors.NewInvalidParameterError("id", "must be a positive integer"))
		return
	}

	entry, err := s.watches.GetByID(r.Context(), id)
	if err != nil {
		respondCategorized(w, errors.NewStorageError("load watch entry", err))
		return
	}
	if entry == nil {
		respondCategorized(w, errors.NewNotFoundError("watch entry", strconv.Itoa(id)))
		return
	}

	if err := s.watches.Delete(r.Context(), id); err != nil {
		respondCategorized(w, errors.NewStorageError("delete watch entry", err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
