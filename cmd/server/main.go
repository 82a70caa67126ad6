// Package main provides the API server entry point for the car market scanner.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/car-scanner/internal/api"
	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/job"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
	"github.com/car-scanner/internal/rates"
	"github.com/car-scanner/internal/scheduler"
	"github.com/car-scanner/internal/scraper"
	"github.com/car-scanner/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Connect to Postgres and bring the schema up to date
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	if err := storage.RunMigrations(cfg.Database.Postgres.URL(), cfg.Database.Postgres.MigrationsPath); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// ClickHouse is optional; without it price history is simply off.
	var historyRepo *storage.HistoryRepository
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		historyRepo = storage.NewHistoryRepository(clickhouse)
		if err := historyRepo.EnsureSchema(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to prepare price history schema")
		}
		logger.Info("Price history store enabled")
	}

	logger.Info("Database connections established")

	// Initialize repositories
	platformRepo := storage.NewPlatformRepository(postgres)
	jobRepo := storage.NewJobRepository(postgres)
	listingRepo := storage.NewListingRepository(postgres)
	cacheRepo := storage.NewSearchCacheRepository(postgres)
	watchRepo := storage.NewWatchListRepository(postgres)

	// Seed the platform catalog so scraped listings can reference rows
	if err := platformRepo.Seed(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to seed platforms")
	}

	// Shared scrape plumbing
	budget, err := ratelimit.NewPageBudgetTracker(&ratelimit.PageBudgetTrackerConfig{
		Redis:       redis.Client(),
		DailyBudget: cfg.Scraper.DailyBudget,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create page budget tracker")
	}

	registry := scraper.DefaultRegistry(scraper.Deps{
		Fetcher: scraper.NewFetcher(cfg.Scraper, ratelimit.NewHostLimiter(cfg.Scraper.HostRPS)),
		Browser: scraper.NewBrowser(cfg.Scraper),
		Proxy:   scraper.NewRenderProxy(cfg.Scraper.ScraperAPIKey, logger),
		Pacer:   pacing.NewPacer(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay),
		Budget:  budget,
		Log:     logger,
	})
	logger.WithField("sources", len(registry.Keys())).Info("Scrape sources registered")

	// Job orchestrator
	jobDeps := job.Deps{
		Jobs:      jobRepo,
		Listings:  listingRepo,
		Platforms: platformRepo,
		Cache:     cacheRepo,
		Registry:  registry,
		Log:       logger,
	}
	if historyRepo != nil {
		jobDeps.History = historyRepo
	}
	orchestrator := job.NewOrchestrator(jobDeps, job.Config{
		CacheTTL: cfg.Cache.TTL,
		MaxPages: cfg.Scraper.MaxPages,
	})

	// EUR/USD rate client, cached in Redis
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL)
	rateClient := rates.NewClient(cfg.Rates, cacheService, logger)

	// Watch-list scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.NewScheduler(watchRepo, orchestrator, cacheRepo, registry, logger, cfg.Scheduler)
		if err := sched.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start scheduler")
		}
	}

	// HTTP API
	apiDeps := api.Deps{
		Submitter: orchestrator,
		Jobs:      jobRepo,
		Listings:  listingRepo,
		Platforms: platformRepo,
		Watches:   watchRepo,
		Rates:     rateClient,
		Stats:     cacheService,
		Registry:  registry,
		Log:       logger,
	}
	if historyRepo != nil {
		apiDeps.Trends = historyRepo
	}
	server := api.NewServer(apiDeps, cfg.Server)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if sched != nil {
		if err := sched.Stop(); err != nil {
			logger.WithError(err).Warn("Scheduler stop reported an error")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
