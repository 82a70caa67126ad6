package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/stats"
)

// parseJobID extracts and validates the job_id path variable.
func parseJobID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["job_id"])
	if err != nil {
		return uuid.Nil, errors.NewInvalidParameterError("job_id", "must be a UUID")
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back on a default.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidParameterError(name, "must be an integer")
	}
	return v, nil
}

// loadJob fetches a job row, mapping absence to a not-found error.
func (s *Server) loadJob(ctx context.Context, jobID uuid.UUID) (*models.ScrapeJob, error) {
	jobRow, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, errors.NewStorageError("load scrape job", err)
	}
	if jobRow == nil {
		return nil, errors.NewJobNotFoundError(jobID.String())
	}
	return jobRow, nil
}

// platformNames resolves platform IDs to display names.
func (s *Server) platformNames(ctx context.Context, ids []int) (map[int]string, error) {
	names, err := s.platforms.NamesByIDs(ctx, ids)
	if err != nil {
		return nil, errors.NewStorageError("resolve platform names", err)
	}
	return names, nil
}

// jobStats returns the statistics map for a completed job, served from the
// stats cache when possible. A completed job's listings never change, so a
// cached map never goes stale. Cache failures fall back to computing.
func (s *Server) jobStats(ctx context.Context, jobRow *models.ScrapeJob, compute func() stats.Map) stats.Map {
	if s.statsCache == nil {
		return compute()
	}

	key := s.statsCache.GenerateStatsKey(string(jobRow.JobType), jobRow.ID.String())
	var cached stats.Map
	ok, err := s.statsCache.Get(ctx, key, &cached)
	if err != nil {
		s.log.WithError(err).WithJob(jobRow.ID.String()).Warn("Stats cache read failed")
	} else if ok {
		return cached
	}

	computed := compute()
	if err := s.statsCache.Set(ctx, key, computed); err != nil {
		s.log.WithError(err).WithJob(jobRow.ID.String()).Warn("Stats cache write failed")
	}
	return computed
}

// jobProgressResponse reports a job that has not completed yet.
type jobProgressResponse struct {
	JobID    string  `json:"jobId"`
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	Error    *string `json:"error,omitempty"`
}

func jobProgress(jobRow *models.ScrapeJob) jobProgressResponse {
	return jobProgressResponse{
		JobID:    jobRow.ID.String(),
		Status:   string(jobRow.Status),
		Progress: jobRow.Progress,
		Error:    jobRow.ErrorMessage,
	}
}

// auctionListingView decorates a listing row with its platform display name.
type auctionListingView struct {
	models.AuctionListing
	Platform string `json:"platform"`
}

// usedCarListingView decorates a listing row with its platform display name.
type usedCarListingView struct {
	models.UsedCarListing
	Platform string `json:"platform"`
}

type auctionResultsResponse struct {
	JobID        string               `json:"jobId"`
	Status       string               `json:"status"`
	TotalResults int                  `json:"totalResults"`
	Listings     []auctionListingView `json:"listings"`
	Statistics   stats.Map            `json:"statistics"`
}

type usedCarResultsResponse struct {
	JobID        string               `json:"jobId"`
	Status       string               `json:"status"`
	TotalResults int                  `json:"totalResults"`
	Listings     []usedCarListingView `json:"listings"`
	Statistics   stats.Map            `json:"statistics"`
}

// handleAuctionResults returns a completed auction job's listings and
// statistics. A job still in flight reports status and progress instead.
func (s *Server) handleAuctionResults(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	jobRow, err := s.loadJob(r.Context(), jobID)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if jobRow.JobType != models.JobTypeAuction {
		respondCategorized(w, errors.NewInvalidParameterError("job_id", "not an auction job"))
		return
	}
	if jobRow.Status != models.JobStatusCompleted {
		respondJSON(w, http.StatusOK, jobProgress(jobRow))
		return
	}

	rows, err := s.listings.GetAuctionByJobID(r.Context(), jobID)
	if err != nil {
		respondCategorized(w, errors.NewStorageError("load auction listings", err))
		return
	}

	ids := make([]int, 0, 4)
	seen := make(map[int]bool)
	for _, l := range rows {
		if !seen[l.PlatformID] {
			seen[l.PlatformID] = true
			ids = append(ids, l.PlatformID)
		}
	}
	names, err := s.platformNames(r.Context(), ids)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	views := make([]auctionListingView, 0, len(rows))
	values := make([]models.AuctionListing, 0, len(rows))
	for _, l := range rows {
		views = append(views, auctionListingView{AuctionListing: *l, Platform: names[l.PlatformID]})
		values = append(values, *l)
	}

	respondJSON(w, http.StatusOK, auctionResultsResponse{
		JobID:        jobID.String(),
		Status:       string(jobRow.Status),
		TotalResults: len(rows),
		Listings:     views,
		Statistics: s.jobStats(r.Context(), jobRow, func() stats.Map {
			return stats.ComputeAuctionStats(values)
		}),
	})
}

// handleUsedCarResults returns a completed used-car job's listings and
// statistics. A job still in flight reports status and progress instead.
func (s *Server) handleUsedCarResults(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	jobRow, err := s.loadJob(r.Context(), jobID)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if jobRow.JobType != models.JobTypeUsedCar {
		respondCategorized(w, errors.NewInvalidParameterError("job_id", "not a used-car job"))
		return
	}
	if jobRow.Status != models.JobStatusCompleted {
		respondJSON(w, http.StatusOK, jobProgress(jobRow))
		return
	}

	rows, err := s.listings.GetUsedCarByJobID(r.Context(), jobID)
	if err != nil {
		respondCategorized(w, errors.NewStorageError("load used car listings", err))
		return
	}

	ids := make([]int, 0, 4)
	seen := make(map[int]bool)
	for _, l := range rows {
		if !seen[l.PlatformID] {
			seen[l.PlatformID] = true
			ids = append(ids, l.PlatformID)
		}
	}
	names, err := s.platformNames(r.Context(), ids)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	views := make([]usedCarListingView, 0, len(rows))
	values := make([]models.UsedCarListing, 0, len(rows))
	for _, l := range rows {
		views = append(views, usedCarListingView{UsedCarListing: *l, Platform: names[l.PlatformID]})
		values = append(values, *l)
	}

	respondJSON(w, http.StatusOK, usedCarResultsResponse{
		JobID:        jobID.String(),
		Status:       string(jobRow.Status),
		TotalResults: len(rows),
		Listings:     views,
		Statistics: s.jobStats(r.Context(), jobRow, func() stats.Map {
			return stats.ComputeUsedCarStats(values)
		}),
	})
}

// handleJobStatus returns the raw job row, whatever its state.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	jobRow, err := s.loadJob(r.Context(), jobID)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, jobRow)
}

// handleListJobs returns recent jobs, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if limit < 1 || limit > 100 {
		respondCategorized(w, errors.NewInvalidParameterError("limit", "must be between 1 and 100"))
		return
	}

	rows, err := s.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		respondCategorized(w, errors.NewStorageError("list scrape jobs", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  rows,
		"count": len(rows),
	})
}
