package api

import (
	"net/http"
	"strings"

	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/job"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/scraper"
)

// Platform sets used when a search names none.
var (
	defaultAuctionPlatforms = []string{"bat", "carsandbids"}
	defaultUsedCarPlatforms = map[string][]string{
		"usa":     {"autotrader", "carscom"},
		"germany": {"mobilede", "autoscout24", "kleinanzeigen"},
	}
)

// searchRequest is the body of both search endpoints. time_filter only
// applies to auctions and region only to used cars; the other endpoint
// ignores them.
type searchRequest struct {
	Make        string   `json:"make"`
	Model       string   `json:"model,omitempty"`
	YearFrom    int      `json:"year_from,omitempty"`
	YearTo      int      `json:"year_to,omitempty"`
	Keyword     string   `json:"keyword,omitempty"`
	TimeFilter  string   `json:"time_filter,omitempty"`
	Region      string   `json:"region,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
	BypassCache bool     `json:"bypass_cache,omitempty"`
}

// criteria converts the request into search criteria.
func (req *searchRequest) criteria() models.SearchCriteria {
	return models.SearchCriteria{
		Make:       strings.TrimSpace(req.Make),
		Model:      strings.TrimSpace(req.Model),
		YearFrom:   req.YearFrom,
		YearTo:     req.YearTo,
		Keyword:    strings.TrimSpace(req.Keyword),
		TimeFilter: models.TimeFilter(req.TimeFilter),
		Region:     strings.ToLower(strings.TrimSpace(req.Region)),
	}
}

// validate checks the fields shared by both search kinds.
func (req *searchRequest) validate() error {
	if strings.TrimSpace(req.Make) == "" {
		return errors.NewMissingMakeError()
	}
	if err := validateYearRange(req.YearFrom, req.YearTo); err != nil {
		return err
	}
	switch models.TimeFilter(req.TimeFilter) {
	case "", models.TimeFilter5M, models.TimeFilter1Y, models.TimeFilter2Y, models.TimeFilterAll:
	default:
		return errors.NewInvalidParameterError("time_filter", "must be one of 5m, 1y, 2y, all")
	}
	return nil
}

// validateYearRange rejects years outside the plausible model-year window.
// Zero means unset and passes.
func validateYearRange(yearFrom, yearTo int) error {
	if yearFrom != 0 && (yearFrom < 1900 || yearFrom > 2100) {
		return errors.NewInvalidParameterError("year_from", "must be between 1900 and 2100")
	}
	if yearTo != 0 && (yearTo < 1900 || yearTo > 2100) {
		return errors.NewInvalidParameterError("year_to", "must be between 1900 and 2100")
	}
	if yearFrom != 0 && yearTo != 0 && yearFrom > yearTo {
		return errors.NewInvalidParameterError("year_from", "must not exceed year_to")
	}
	return nil
}

// searchResponse reports the job a search mapped to. A cache hit points at
// a job that already completed.
type searchResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Cached bool   `json:"cached"`
}

// handleAuctionSearch starts an auction scrape job.
func (s *Server) handleAuctionSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON", nil)
		return
	}
	if err := req.validate(); err != nil {
		respondCategorized(w, err)
		return
	}

	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = defaultAuctionPlatforms
	}
	if err := s.checkPlatforms(platforms, scraper.KindAuction); err != nil {
		respondCategorized(w, err)
		return
	}

	s.submit(w, r, job.Request{
		Criteria:    req.criteria(),
		Platforms:   platforms,
		JobType:     models.JobTypeAuction,
		BypassCache: req.BypassCache,
	})
}

// handleUsedCarSearch starts a used-car scrape job. Without an explicit
// platform list the region picks one: usa or germany.
func (s *Server) handleUsedCarSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON", nil)
		return
	}
	if err := req.validate(); err != nil {
		respondCategorized(w, err)
		return
	}

	platforms := req.Platforms
	if len(platforms) == 0 {
		region := strings.ToLower(strings.TrimSpace(req.Region))
		if region == "" {
			region = "usa"
		}
		var ok bool
		platforms, ok = defaultUsedCarPlatforms[region]
		if !ok {
			respondCategorized(w, errors.NewInvalidParameterError("region", "must be usa or germany"))
			return
		}
	}
	if err := s.checkPlatforms(platforms, scraper.KindUsedCar); err != nil {
		respondCategorized(w, err)
		return
	}

	s.submit(w, r, job.Request{
		Criteria:    req.criteria(),
		Platforms:   platforms,
		JobType:     models.JobTypeUsedCar,
		BypassCache: req.BypassCache,
	})
}

// checkPlatforms rejects unknown keys and keys of the wrong kind up front
// instead of letting the job skip them one by one.
func (s *Server) checkPlatforms(keys []string, kind scraper.Kind) error {
	for _, key := range keys {
		src, ok := s.registry.Get(key)
		if !ok {
			return errors.NewUnknownPlatformError(key)
		}
		if src.Kind != kind {
			if kind == scraper.KindAuction {
				return errors.NewInvalidParameterError("platforms", key+" is not an auction source")
			}
			return errors.NewInvalidParameterError("platforms", key+" is not a used-car source")
		}
	}
	return nil
}

// submit hands the request to the orchestrator and reports the job.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, req job.Request) {
	sub, err := s.submitter.SubmitSearch(r.Context(), req)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	status := models.JobStatusPending
	if sub.Cached {
		status = models.JobStatusCompleted
	}

	respondJSON(w, http.StatusOK, searchResponse{
		JobID:  sub.JobID.String(),
		Status: string(status),
		Cached: sub.Cached,
	})
}
