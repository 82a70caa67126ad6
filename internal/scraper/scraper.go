// Package scraper contains the per-site adapters that turn vehicle search
// criteria into normalized listings. Every site implements one of two
// capability interfaces, auction or used-car, and registers itself under a
// stable key. Adapters share the same fetching, rendering, extraction and
// parsing plumbing so a new site is mostly selectors plus a URL builder.
package scraper

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
)

// Kind distinguishes the two listing families a source produces.
type Kind string

const (
	KindAuction Kind = "auction"
	KindUsedCar Kind = "used_car"
)

// ProgressFunc receives pagination progress while a search runs. Callbacks
// must not block; updates are best-effort.
type ProgressFunc func(page, totalPages, listings int)

// Options carries per-search tuning shared by all sources.
type Options struct {
	// MaxPages caps how many result pages a paginated source walks.
	MaxPages int

	// OnProgress, when set, is invoked after each page is processed.
	OnProgress ProgressFunc
}

func (o Options) report(page, totalPages, listings int) {
	if o.OnProgress != nil {
		o.OnProgress(page, totalPages, listings)
	}
}

// AuctionSource searches a completed-auction site.
//
// Implementations return the listings they could extract and filter, never
// panicking on malformed pages. A partial result with a nil error is the
// normal outcome when a site degrades mid-pagination; an error is reserved
// for conditions where nothing was attempted.
type AuctionSource interface {
	Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.AuctionListing, error)
}

// UsedCarSource searches an active used-car marketplace.
type UsedCarSource interface {
	Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.UsedCarListing, error)
}

// Source describes one registered scrape target. Exactly one of Auction or
// UsedCar is set for implemented sources; both nil marks a known site that
// has no adapter yet.
type Source struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	Kind        Kind   `json:"kind"`
	Region      string `json:"region"`

	Auction AuctionSource `json:"-"`
	UsedCar UsedCarSource `json:"-"`
}

// IsStub reports whether the source is registered without an implementation.
func (s Source) IsStub() bool {
	return s.Auction == nil && s.UsedCar == nil
}

// Registry holds the set of available sources keyed by their stable key.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	order   []string
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds or replaces a source. Registration order is preserved for
// listing endpoints.
func (r *Registry) Register(src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[src.Key]; !exists {
		r.order = append(r.order, src.Key)
	}
	r.sources[src.Key] = src
}

// Get returns the source registered under key.
func (r *Registry) Get(key string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[strings.ToLower(key)]
	return src, ok
}

// Keys returns all registered keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Sources returns all registered sources in registration order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.sources[key])
	}
	return out
}

// ByRegion returns the keys of implemented sources in the given region,
// sorted for stable fan-out order.
func (r *Registry) ByRegion(region string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for _, key := range r.order {
		src := r.sources[key]
		if !src.IsStub() && strings.EqualFold(src.Region, region) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Deps bundles the shared plumbing injected into every adapter.
type Deps struct {
	Fetcher *Fetcher
	Browser *Browser
	Proxy   *RenderProxy
	Pacer   *pacing.Pacer
	Budget  *ratelimit.PageBudgetTracker
	Log     *logging.Logger
}

// DefaultRegistry builds the registry with every shipped adapter.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(Source{Key: "bat", DisplayName: "Bring a Trailer", Kind: KindAuction, Region: "USA", Auction: NewBringATrailer(deps)})
	r.Register(Source{Key: "carsandbids", DisplayName: "Cars & Bids", Kind: KindAuction, Region: "USA", Auction: NewCarsAndBids(deps)})
	r.Register(Source{Key: "autotrader", DisplayName: "AutoTrader", Kind: KindUsedCar, Region: "USA", UsedCar: NewAutotrader(deps)})
	r.Register(Source{Key: "carscom", DisplayName: "Cars.com", Kind: KindUsedCar, Region: "USA", UsedCar: NewCarsCom(deps)})
	r.Register(Source{Key: "cargurus", DisplayName: "CarGurus", Kind: KindUsedCar, Region: "USA", UsedCar: NewCarGurus(deps)})
	r.Register(Source{Key: "mobilede", DisplayName: "Mobile.de", Kind: KindUsedCar, Region: "Germany", UsedCar: NewMobileDe(deps)})
	r.Register(Source{Key: "autoscout24", DisplayName: "AutoScout24", Kind: KindUsedCar, Region: "Germany", UsedCar: NewAutoScout24(deps)})
	r.Register(Source{Key: "kleinanzeigen", DisplayName: "eBay Kleinanzeigen", Kind: KindUsedCar, Region: "Germany", UsedCar: NewKleinanzeigen(deps)})
	return r
}

// botMarkers are title fragments that identify an anti-bot interstitial
// instead of a results page.
var botMarkers = []string{"captcha", "blocked", "access denied", "security"}

// BotMarker checks a page title for anti-bot interstitial markers and
// returns the matched marker.
func BotMarker(title string) (string, bool) {
	lower := strings.ToLower(title)
	for _, marker := range botMarkers {
		if strings.Contains(lower, marker) {
			return marker, true
		}
	}
	return "", false
}

// allowPage consumes one page from the source's daily budget. A nil tracker
// means budgeting is disabled.
func allowPage(ctx context.Context, budget *ratelimit.PageBudgetTracker, source string) bool {
	if budget == nil {
		return true
	}
	return budget.TryConsume(ctx, source)
}
