// Package main provides a one-shot scrape CLI. It runs a single source
// search and prints the normalized listings as JSON on stdout, talking to
// the site directly without Postgres or Redis. That makes it the quickest
// way to check selectors against live pages.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
	"github.com/car-scanner/internal/scraper"
)

func main() {
	var (
		source     = flag.String("source", "bat", "Source key to scrape (see -list)")
		list       = flag.Bool("list", false, "List available sources and exit")
		makeFlag   = flag.String("make", "", "Vehicle make (required)")
		model      = flag.String("model", "", "Vehicle model")
		yearFrom   = flag.Int("year-from", 0, "Earliest model year")
		yearTo     = flag.Int("year-to", 0, "Latest model year")
		keyword    = flag.String("keyword", "", "Free-text keyword")
		timeFilter = flag.String("time-filter", "", "Auction recency window: 5m, 1y, 2y, all")
		maxPages   = flag.Int("max-pages", 1, "Result pages to walk")
		timeout    = flag.Duration("timeout", 5*time.Minute, "Overall deadline")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout stays valid JSON.
	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.FormatText)
	logger.SetOutput(os.Stderr)

	// No budget tracker: one-shot runs are not subject to the daily page
	// budget and need no Redis.
	registry := scraper.DefaultRegistry(scraper.Deps{
		Fetcher: scraper.NewFetcher(cfg.Scraper, ratelimit.NewHostLimiter(cfg.Scraper.HostRPS)),
		Browser: scraper.NewBrowser(cfg.Scraper),
		Proxy:   scraper.NewRenderProxy(cfg.Scraper.ScraperAPIKey, logger),
		Pacer:   pacing.NewPacer(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay),
		Log:     logger,
	})

	if *list {
		for _, src := range registry.Sources() {
			fmt.Printf("%-14s %-22s %-9s %s\n", src.Key, src.DisplayName, src.Kind, src.Region)
		}
		return
	}

	if strings.TrimSpace(*makeFlag) == "" {
		fmt.Fprintln(os.Stderr, "Error: -make is required")
		flag.Usage()
		os.Exit(1)
	}

	src, ok := registry.Get(*source)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown source %q (use -list)\n", *source)
		os.Exit(1)
	}
	if src.IsStub() {
		fmt.Fprintf(os.Stderr, "Error: source %q has no adapter yet\n", *source)
		os.Exit(1)
	}

	criteria := models.SearchCriteria{
		Make:       strings.TrimSpace(*makeFlag),
		Model:      strings.TrimSpace(*model),
		YearFrom:   *yearFrom,
		YearTo:     *yearTo,
		Keyword:    strings.TrimSpace(*keyword),
		TimeFilter: models.TimeFilter(*timeFilter),
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := scraper.Options{
		MaxPages: *maxPages,
		OnProgress: func(page, totalPages, listings int) {
			fmt.Fprintf(os.Stderr, "page %d/%d: %d listings\n", page, totalPages, listings)
		},
	}

	var result interface{}
	if src.Auction != nil {
		listings, err := src.Auction.Search(ctx, criteria, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		result = listings
	} else {
		listings, err := src.UsedCar.Search(ctx, criteria, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		result = listings
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
}
