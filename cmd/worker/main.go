// Package main provides the watch-list worker entry point for the car market
// scanner. It runs the rescan scheduler without the HTTP API, for deployments
// that separate scraping from serving.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/job"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
	"github.com/car-scanner/internal/scheduler"
	"github.com/car-scanner/internal/scraper"
	"github.com/car-scanner/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithField("service", "worker")

	// The API server owns migrations and seeding; the worker only connects.
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

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
	}

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

	cacheRepo := storage.NewSearchCacheRepository(postgres)
	jobDeps := job.Deps{
		Jobs:      storage.NewJobRepository(postgres),
		Listings:  storage.NewListingRepository(postgres),
		Platforms: storage.NewPlatformRepository(postgres),
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

	watchRepo := storage.NewWatchListRepository(postgres)
	sched := scheduler.NewScheduler(watchRepo, orchestrator, cacheRepo, registry, logger, cfg.Scheduler)
	if err := sched.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	logger.Info("Watch-list worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutdown signal received, stopping worker...")
	if err := sched.Stop(); err != nil {
		logger.WithError(err).Warn("Scheduler stop reported an error")
	}
	logger.Info("Worker stopped")
}
