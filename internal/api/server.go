// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/job"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/scraper"
)

// Store interfaces for dependency injection and testing

// SearchSubmitter starts scrape jobs and reports search cache hits.
type SearchSubmitter interface {
	SubmitSearch(ctx context.Context, req job.Request) (job.Submission, error)
}

// JobReader loads scrape job rows. A missing job is (nil, nil).
type JobReader interface {
	GetByID(ctx context.Context, jobID uuid.UUID) (*models.ScrapeJob, error)
	ListRecent(ctx context.Context, limit int) ([]*models.ScrapeJob, error)
}

// ListingReader loads persisted listings.
type ListingReader interface {
	GetAuctionByJobID(ctx context.Context, jobID uuid.UUID) ([]*models.AuctionListing, error)
	GetUsedCarByJobID(ctx context.Context, jobID uuid.UUID) ([]*models.UsedCarListing, error)
	GetUsedCarByCriteria(ctx context.Context, platformIDs []int, make, model string, yearFrom, yearTo int) ([]*models.UsedCarListing, error)
}

// PlatformReader loads seeded platform rows.
type PlatformReader interface {
	List(ctx context.Context, platformType string) ([]*models.Platform, error)
	NamesByIDs(ctx context.Context, ids []int) (map[int]string, error)
}

// WatchStore manages saved watch-list searches.
type WatchStore interface {
	Create(ctx context.Context, entry *models.WatchEntry) error
	GetByID(ctx context.Context, id int) (*models.WatchEntry, error)
	List(ctx context.Context) ([]*models.WatchEntry, error)
	Delete(ctx context.Context, id int) error
}

// TrendReader serves monthly price trends from the history store.
type TrendReader interface {
	Trend(ctx context.Context, make, model string, months int) ([]*models.TrendPoint, error)
}

// RateSource provides the current EUR/USD exchange rate.
type RateSource interface {
	EURUSD(ctx context.Context) float64
}

// StatsCache caches computed statistics for completed jobs.
type StatsCache interface {
	GenerateStatsKey(kind, jobID string) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Deps bundles everything the handlers reach. Trends may be nil when the
// price-history store is disabled; Stats may be nil to skip stats caching.
type Deps struct {
	Submitter SearchSubmitter
	Jobs      JobReader
	Listings  ListingReader
	Platforms PlatformReader
	Watches   WatchStore
	Trends    TrendReader
	Rates     RateSource
	Stats     StatsCache
	Registry  *scraper.Registry
	Log       *logging.Logger
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	submitter  SearchSubmitter
	jobs       JobReader
	listings   ListingReader
	platforms  PlatformReader
	watches    WatchStore
	trends     TrendReader
	rates      RateSource
	statsCache StatsCache
	registry   *scraper.Registry
	log        *logging.Logger
	config     config.ServerConfig
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, cfg config.ServerConfig) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		submitter:  deps.Submitter,
		jobs:       deps.Jobs,
		listings:   deps.Listings,
		platforms:  deps.Platforms,
		watches:    deps.Watches,
		trends:     deps.Trends,
		rates:      deps.Rates,
		statsCache: deps.Stats,
		registry:   deps.Registry,
		log:        deps.Log.WithField("component", "api"),
		config:     cfg,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters)
	s.router.Use(LoggingMiddleware(s.log))
	s.router.Use(RecoveryMiddleware(s.log))
	s.router.Use(CORSMiddleware)
	if s.config.RateRPS > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RateRPS, s.config.RateBurst)))
	}
	s.router.Use(CompressionMiddleware)

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Auction endpoints
	api.HandleFunc("/auctions/search", s.handleAuctionSearch).Methods("POST")
	api.HandleFunc("/auctions/results/{job_id}", s.handleAuctionResults).Methods("GET")

	// Used-car endpoints
	api.HandleFunc("/used-cars/search", s.handleUsedCarSearch).Methods("POST")
	api.HandleFunc("/used-cars/results/{job_id}", s.handleUsedCarResults).Methods("GET")

	// Job endpoints
	api.HandleFunc("/jobs", s.handleListJobs).Methods("GET")
	api.HandleFunc("/jobs/{job_id}", s.handleJobStatus).Methods("GET")

	// Cross-market comparison
	api.HandleFunc("/comparison/analyze", s.handleComparison).Methods("POST")

	// Watch-list endpoints
	api.HandleFunc("/watchlist", s.handleListWatches).Methods("GET")
	api.HandleFunc("/watchlist", s.handleCreateWatch).Methods("POST")
	api.HandleFunc("/watchlist/{id}", s.handleDeleteWatch).Methods("DELETE")

	// Platform and history endpoints
	api.HandleFunc("/platforms", s.handleListPlatforms).Methods("GET")
	api.HandleFunc("/history/trend", s.handleTrend).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "car-scanner",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
