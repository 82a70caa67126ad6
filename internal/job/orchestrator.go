// Package job orchestrates multi-platform scrape jobs. A submission fans a
// search out over the requested platforms, persisting each platform's
// listings as soon as they arrive and tracking progress on the job row.
// Completed searches are cached by fingerprint so a repeat search within the
// TTL returns the prior job instead of scraping again.
package job

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/scraper"
	"github.com/car-scanner/internal/search"
)

// JobStore is the slice of job persistence the orchestrator needs.
type JobStore interface {
	Create(ctx context.Context, job *models.ScrapeJob) error
	MarkRunning(ctx context.Context, jobID uuid.UUID) error
	UpdateProgress(ctx context.Context, jobID uuid.UUID, progress int) error
	Complete(ctx context.Context, jobID uuid.UUID, totalResults int) error
	Fail(ctx context.Context, jobID uuid.UUID, errorMessage string) error
}

// ListingStore persists scraped listings per platform step.
type ListingStore interface {
	InsertAuctionListings(ctx context.Context, listings []*models.AuctionListing) error
	InsertUsedCarListings(ctx context.Context, listings []*models.UsedCarListing) error
}

// PlatformStore resolves registry keys to seeded platform rows. A missing
// platform is (nil, nil); an error means the lookup itself failed.
type PlatformStore interface {
	GetByName(ctx context.Context, name string) (*models.Platform, error)
}

// CacheStore maps search fingerprints to completed job IDs.
type CacheStore interface {
	Lookup(ctx context.Context, fingerprint string) (uuid.UUID, bool, error)
	Store(ctx context.Context, fingerprint string, jobID uuid.UUID, ttl time.Duration) error
}

// HistoryRecorder appends price observations to the optional history store.
type HistoryRecorder interface {
	Record(ctx context.Context, observations []*models.PriceObservation) error
}

// Config tunes orchestration behavior.
type Config struct {
	// CacheTTL is how long a completed search stays retrievable by
	// fingerprint.
	CacheTTL time.Duration

	// MaxPages caps pagination for every platform in a job.
	MaxPages int
}

// Deps bundles the stores and plumbing injected into the orchestrator.
// History may be nil when the history store is disabled.
type Deps struct {
	Jobs      JobStore
	Listings  ListingStore
	Platforms PlatformStore
	Cache     CacheStore
	Registry  *scraper.Registry
	History   HistoryRecorder
	Log       *logging.Logger
}

// Request is one validated search submission.
type Request struct {
	Criteria    models.SearchCriteria
	Platforms   []string
	JobType     models.JobType
	BypassCache bool
}

// Submission is the immediate answer to a search request. Cached means the
// job ID points at a prior run and no new scrape was started.
type Submission struct {
	JobID  uuid.UUID
	Cached bool
}

// TaskHandle tracks one in-flight job. Wait and Done exist for tests and
// diagnostics; API callers poll the job row instead.
type TaskHandle struct {
	JobID uuid.UUID

	done chan struct{}
}

// Wait blocks until the job has reached a terminal state.
func (h *TaskHandle) Wait() {
	<-h.done
}

// Done returns a channel closed when the job reaches a terminal state.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Orchestrator runs scrape jobs in the background and answers submissions
// immediately. In-flight jobs are tracked in an explicit handle registry
// that is cleared as each job finishes.
type Orchestrator struct {
	jobs      JobStore
	listings  ListingStore
	platforms PlatformStore
	cache     CacheStore
	registry  *scraper.Registry
	history   HistoryRecorder
	log       *logging.Logger
	cfg       Config

	mu      sync.Mutex
	handles map[uuid.UUID]*TaskHandle
}

// NewOrchestrator creates an orchestrator over the given stores.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	return &Orchestrator{
		jobs:      deps.Jobs,
		listings:  deps.Listings,
		platforms: deps.Platforms,
		cache:     deps.Cache,
		registry:  deps.Registry,
		history:   deps.History,
		log:       deps.Log.WithField("component", "orchestrator"),
		cfg:       cfg,
		handles:   make(map[uuid.UUID]*TaskHandle),
	}
}

// SubmitSearch answers a search request without blocking on the scrape.
// Unless the request bypasses the cache, a fingerprint hit short-circuits to
// the prior job. Otherwise a pending job row is created and the scrape runs
// in a background goroutine.
func (o *Orchestrator) SubmitSearch(ctx context.Context, req Request) (Submission, error) {
	fingerprint := search.Fingerprint(req.Criteria, req.Platforms)

	if !req.BypassCache {
		jobID, hit, err := o.cache.Lookup(ctx, fingerprint)
		if err != nil {
			// A broken cache degrades to a fresh scrape.
			o.log.WithError(err).Warn("Search cache lookup failed")
		} else if hit {
			o.log.WithJob(jobID.String()).Info("Search served from cache")
			return Submission{JobID: jobID, Cached: true}, nil
		}
	}

	params, _ := json.Marshal(req.Criteria) // fixed-shape struct, cannot fail

	scrapeJob := &models.ScrapeJob{
		ID:                 uuid.New(),
		Status:             models.JobStatusPending,
		PlatformsRequested: strings.Join(req.Platforms, ","),
		SearchParams:       string(params),
		JobType:            req.JobType,
		CreatedAt:          time.Now(),
	}

	if err := o.jobs.Create(ctx, scrapeJob); err != nil {
		return Submission{}, errors.NewStorageError("create scrape job", err)
	}

	o.log.WithJob(scrapeJob.ID.String()).
		WithField("platforms", scrapeJob.PlatformsRequested).
		WithField("jobType", string(req.JobType)).
		Info("Scrape job submitted")

	o.track(scrapeJob.ID)
	go o.runJob(scrapeJob.ID, fingerprint, req)

	return Submission{JobID: scrapeJob.ID, Cached: false}, nil
}

// Handle returns the live handle for an in-flight job, if any.
func (o *Orchestrator) Handle(jobID uuid.UUID) (*TaskHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	h, ok := o.handles[jobID]
	return h, ok
}

func (o *Orchestrator) track(jobID uuid.UUID) *TaskHandle {
	h := &TaskHandle{JobID: jobID, done: make(chan struct{})}

	o.mu.Lock()
	o.handles[jobID] = h
	o.mu.Unlock()

	return h
}

func (o *Orchestrator) release(jobID uuid.UUID) {
	o.mu.Lock()
	h := o.handles[jobID]
	delete(o.handles, jobID)
	o.mu.Unlock()

	if h != nil {
		close(h.done)
	}
}
