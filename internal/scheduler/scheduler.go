// Package scheduler rescans saved watch-list searches on an interval. Every
// sweep submits a fresh scrape for each due entry, bypassing the search
// cache, so watched models accumulate history without manual searches.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/job"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/scraper"
)

// WatchStore is the slice of watch-list persistence the scheduler uses.
type WatchStore interface {
	ListActive(ctx context.Context) ([]*models.WatchEntry, error)
	MarkRun(ctx context.Context, id int, at time.Time) error
}

// Submitter starts scrape jobs. Satisfied by the job orchestrator.
type Submitter interface {
	SubmitSearch(ctx context.Context, req job.Request) (job.Submission, error)
}

// CachePurger drops expired search-cache rows. Satisfied by the search
// cache repository; nil disables cache cleanup.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler drives periodic watch-list sweeps. A sweep clears expired
// search-cache rows, then submits a rescan for each active entry that is
// due and stamps its run time.
type Scheduler struct {
	watches  WatchStore
	submit   Submitter
	purger   CachePurger
	registry *scraper.Registry
	log      *logging.Logger
	cfg      config.SchedulerConfig

	cron    *cron.Cron
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler over the given stores. A nil purger
// disables search-cache cleanup.
func NewScheduler(watches WatchStore, submit Submitter, purger CachePurger, registry *scraper.Registry, log *logging.Logger, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		watches:  watches,
		submit:   submit,
		purger:   purger,
		registry: registry,
		log:      log.WithField("component", "scheduler"),
		cfg:      cfg,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

// Start schedules the periodic sweep and arms a delayed first run so a fresh
// deployment rescans soon after boot instead of waiting a full interval.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("failed to schedule watch-list sweep: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(s.cfg.StartupDelay):
			s.sweep()
		case <-s.stopCh:
		}
	}()

	s.log.WithField("interval", s.cfg.Interval.String()).Info("Watch-list scheduler started")
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.log.Info("Watch-list scheduler stopped")
	return nil
}

// sweep runs one pass over the active watch list.
func (s *Scheduler) sweep() {
	ctx := context.Background()
	now := time.Now()

	s.purgeCache(ctx)

	entries, err := s.watches.ListActive(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to list watch entries")
		return
	}

	first := true
	for _, entry := range entries {
		if !entry.Due(now) {
			continue
		}
		if !first && !s.pause(s.cfg.EntryDelay) {
			return
		}
		first = false
		s.rescan(ctx, entry)
	}
}

// purgeCache deletes expired search-cache rows. Cache entries are written
// once and never updated, so expired rows stay until a sweep removes them.
func (s *Scheduler) purgeCache(ctx context.Context) {
	if s.purger == nil {
		return
	}
	purged, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to purge expired search cache")
		return
	}
	if purged > 0 {
		s.log.WithField("purged", purged).Info("Expired search-cache entries removed")
	}
}

// rescan submits one watch entry as a fresh scrape job.
func (s *Scheduler) rescan(ctx context.Context, entry *models.WatchEntry) {
	log := s.log.WithField("watchId", entry.ID).WithField("make", entry.Make)

	platforms := entry.PlatformKeys()
	if len(platforms) == 0 {
		log.Warn("Watch entry has no platforms, skipping")
		return
	}

	criteria := models.SearchCriteria{Make: entry.Make}
	if entry.Model != nil {
		criteria.Model = *entry.Model
	}
	if entry.YearFrom != nil {
		criteria.YearFrom = *entry.YearFrom
	}
	if entry.YearTo != nil {
		criteria.YearTo = *entry.YearTo
	}

	// The point of a rescan is fresh data, so the search cache is bypassed.
	sub, err := s.submit.SubmitSearch(ctx, job.Request{
		Criteria:    criteria,
		Platforms:   platforms,
		JobType:     s.jobType(platforms),
		BypassCache: true,
	})
	if err != nil {
		log.WithError(err).Error("Failed to submit watch rescan")
		return
	}

	log.WithJob(sub.JobID.String()).Info("Watch rescan submitted")

	if err := s.watches.MarkRun(ctx, entry.ID, time.Now()); err != nil {
		log.WithError(err).Warn("Failed to stamp watch entry run time")
	}
}

// jobType infers the listing family from the platform set. Any used-car
// platform makes the whole rescan a used-car job.
func (s *Scheduler) jobType(platforms []string) models.JobType {
	for _, key := range platforms {
		if src, ok := s.registry.Get(key); ok && src.Kind == scraper.KindUsedCar {
			return models.JobTypeUsedCar
		}
	}
	return models.JobTypeAuction
}

// pause sleeps between entries, returning false if the scheduler stopped.
func (s *Scheduler) pause(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-s.stopCh:
		return false
	}
}
