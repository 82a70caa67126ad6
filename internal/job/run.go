package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/scraper"
)

// progressBuffer bounds queued progress updates. Senders never block; an
// update that finds the buffer full is dropped.
const progressBuffer = 16

// runJob executes one scrape job to a terminal state. It runs on a background
// context so jobs outlive the HTTP request that submitted them. Platform
// failures are contained: an adapter or persist error costs that platform's
// results, not the job. Only an orchestration-level failure, such as a
// platform lookup hitting a storage error, fails the job.
func (o *Orchestrator) runJob(jobID uuid.UUID, fingerprint string, req Request) {
	defer o.release(jobID)

	ctx := context.Background()
	log := o.log.WithJob(jobID.String())

	if err := o.jobs.MarkRunning(ctx, jobID); err != nil {
		log.WithError(err).Error("Failed to mark job running")
		o.fail(ctx, log, jobID, fmt.Sprintf("could not start job: %v", err))
		return
	}

	progress := make(chan int, progressBuffer)
	var consumer sync.WaitGroup
	consumer.Add(1)
	go func() {
		defer consumer.Done()
		watermark := 0
		for pct := range progress {
			if pct <= watermark {
				continue
			}
			watermark = pct
			if err := o.jobs.UpdateProgress(ctx, jobID, pct); err != nil {
				log.WithError(err).Warn("Failed to update job progress")
			}
		}
	}()

	total := 0
	var fatal error
	n := len(req.Platforms)
	for idx, key := range req.Platforms {
		count, err := o.scrapePlatform(ctx, log, jobID, req, key, 100*idx/n, 100/n, progress)
		if err != nil {
			fatal = err
			break
		}
		total += count
	}

	close(progress)
	consumer.Wait()

	if fatal != nil {
		log.WithError(fatal).Error("Scrape job failed")
		o.fail(ctx, log, jobID, fatal.Error())
		return
	}

	if err := o.jobs.Complete(ctx, jobID, total); err != nil {
		log.WithError(err).Error("Failed to finalize job")
		return
	}
	log.WithField("totalResults", total).Info("Scrape job completed")

	// The cache entry points repeat searches at this job. Failing to write
	// it costs a future cache hit, nothing more.
	if err := o.cache.Store(ctx, fingerprint, jobID, o.cfg.CacheTTL); err != nil {
		log.WithError(err).Warn("Failed to store search cache entry")
	}
}

func (o *Orchestrator) fail(ctx context.Context, log *logging.Logger, jobID uuid.UUID, message string) {
	if err := o.jobs.Fail(ctx, jobID, message); err != nil {
		log.WithError(err).Error("Failed to mark job failed")
	}
}

// scrapePlatform runs one platform step and returns how many listings it
// persisted. A non-nil error is fatal to the whole job; per-platform
// problems are logged and swallowed.
func (o *Orchestrator) scrapePlatform(ctx context.Context, log *logging.Logger, jobID uuid.UUID, req Request, key string, base, weight int, progress chan<- int) (int, error) {
	plog := log.WithPlatform(key)

	src, ok := o.registry.Get(key)
	if !ok {
		plog.Warn("Unknown platform key, skipping")
		return 0, nil
	}
	if src.IsStub() {
		plog.Info("Platform has no adapter yet, skipping")
		return 0, nil
	}

	platform, err := o.platforms.GetByName(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("platform lookup for %s: %w", key, err)
	}
	if platform == nil {
		plog.Warn("Platform not seeded, skipping")
		return 0, nil
	}

	opts := scraper.Options{
		MaxPages: o.cfg.MaxPages,
		OnProgress: func(page, totalPages, listings int) {
			if totalPages < 1 {
				totalPages = 1
			}
			pct := base + page*weight/totalPages
			if pct > 95 {
				pct = 95
			}
			select {
			case progress <- pct:
			default:
			}
		},
	}

	switch req.JobType {
	case models.JobTypeAuction:
		if src.Auction == nil {
			plog.Warn("Platform does not serve auction searches, skipping")
			return 0, nil
		}
		return o.scrapeAuction(ctx, plog, jobID, req.Criteria, src, platform, opts), nil
	case models.JobTypeUsedCar:
		if src.UsedCar == nil {
			plog.Warn("Platform does not serve used-car searches, skipping")
			return 0, nil
		}
		return o.scrapeUsedCar(ctx, plog, jobID, req.Criteria, src, platform, opts), nil
	default:
		plog.Warn("Unknown job type, skipping")
		return 0, nil
	}
}

func (o *Orchestrator) scrapeAuction(ctx context.Context, log *logging.Logger, jobID uuid.UUID, criteria models.SearchCriteria, src scraper.Source, platform *models.Platform, opts scraper.Options) int {
	listings, err := src.Auction.Search(ctx, criteria, opts)
	if err != nil {
		log.WithError(err).Error("Auction search failed")
		return 0
	}
	if len(listings) == 0 {
		log.Info("No auction listings found")
		return 0
	}

	rows := make([]*models.AuctionListing, len(listings))
	for i := range listings {
		listings[i].PlatformID = platform.ID
		listings[i].JobID = jobID.String()
		rows[i] = &listings[i]
	}

	if err := o.listings.InsertAuctionListings(ctx, rows); err != nil {
		log.WithError(err).Error("Failed to persist auction listings")
		return 0
	}

	o.recordHistory(ctx, log, auctionObservations(platform, listings))
	log.WithField("listings", len(rows)).Info("Persisted auction listings")
	return len(rows)
}

func (o *Orchestrator) scrapeUsedCar(ctx context.Context, log *logging.Logger, jobID uuid.UUID, criteria models.SearchCriteria, src scraper.Source, platform *models.Platform, opts scraper.Options) int {
	listings, err := src.UsedCar.Search(ctx, criteria, opts)
	if err != nil {
		log.WithError(err).Error("Used-car search failed")
		return 0
	}
	if len(listings) == 0 {
		log.Info("No used-car listings found")
		return 0
	}

	rows := make([]*models.UsedCarListing, len(listings))
	for i := range listings {
		listings[i].PlatformID = platform.ID
		listings[i].JobID = jobID.String()
		rows[i] = &listings[i]
	}

	if err := o.listings.InsertUsedCarListings(ctx, rows); err != nil {
		log.WithError(err).Error("Failed to persist used-car listings")
		return 0
	}

	o.recordHistory(ctx, log, usedCarObservations(platform, listings))
	log.WithField("listings", len(rows)).Info("Persisted used-car listings")
	return len(rows)
}

// recordHistory appends price observations best-effort. The history store is
// optional and its failures never affect the job.
func (o *Orchestrator) recordHistory(ctx context.Context, log *logging.Logger, observations []*models.PriceObservation) {
	if o.history == nil || len(observations) == 0 {
		return
	}
	if err := o.history.Record(ctx, observations); err != nil {
		log.WithError(err).Warn("Failed to record price history")
	}
}

// auctionObservations converts persisted auction listings to history rows.
// Listings with no extractable price are skipped.
func auctionObservations(platform *models.Platform, listings []models.AuctionListing) []*models.PriceObservation {
	now := time.Now()

	var out []*models.PriceObservation
	for i := range listings {
		l := &listings[i]

		var price float64
		if l.SoldPrice != nil {
			price = *l.SoldPrice
		} else if l.StartingBid != nil {
			price = *l.StartingBid
		}
		if price <= 0 {
			continue
		}

		obs := &models.PriceObservation{
			ObservedAt: now,
			Platform:   platform.Name,
			Region:     string(platform.Region),
			Kind:       string(models.JobTypeAuction),
			Price:      price,
			Currency:   "USD",
			Sold:       l.IsSold,
		}
		if l.Make != nil {
			obs.Make = *l.Make
		}
		if l.Model != nil {
			obs.Model = *l.Model
		}
		if l.Year != nil {
			obs.Year = uint16(*l.Year)
		}
		if l.URL != nil {
			obs.URL = *l.URL
		}
		out = append(out, obs)
	}
	return out
}

// usedCarObservations converts persisted used-car listings to history rows.
func usedCarObservations(platform *models.Platform, listings []models.UsedCarListing) []*models.PriceObservation {
	now := time.Now()

	var out []*models.PriceObservation
	for i := range listings {
		l := &listings[i]

		if l.ListPrice == nil || *l.ListPrice <= 0 {
			continue
		}

		obs := &models.PriceObservation{
			ObservedAt: now,
			Platform:   platform.Name,
			Region:     string(platform.Region),
			Kind:       string(models.JobTypeUsedCar),
			Price:      *l.ListPrice,
			Currency:   l.Currency,
		}
		if l.Make != nil {
			obs.Make = *l.Make
		}
		if l.Model != nil {
			obs.Model = *l.Model
		}
		if l.Year != nil {
			obs.Year = uint16(*l.Year)
		}
		if l.Mileage != nil {
			obs.Mileage = uint32(*l.Mileage)
		}
		if l.URL != nil {
			obs.URL = *l.URL
		}
		out = append(out, obs)
	}
	return out
}
