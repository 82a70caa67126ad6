package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/job"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/scraper"
)

func testLog() *logging.Logger {
	log := logging.NewLogger(logging.LevelError, logging.FormatText)
	log.SetOutput(io.Discard)
	return log
}

func strptr(s string) *string { return &s }
func iptr(i int) *int         { return &i }
func fptr(f float64) *float64 { return &f }

// stubSubmitter records search submissions and returns a canned result.
type stubSubmitter struct {
	mu       sync.Mutex
	requests []job.Request
	sub      job.Submission
	err      error
}

func (s *stubSubmitter) SubmitSearch(ctx context.Context, req job.Request) (job.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return job.Submission{}, s.err
	}
	return s.sub, nil
}

func (s *stubSubmitter) last(t *testing.T) job.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no search was submitted")
	}
	return s.requests[len(s.requests)-1]
}

// stubJobs serves job rows from a map.
type stubJobs struct {
	byID   map[uuid.UUID]*models.ScrapeJob
	recent []*models.ScrapeJob
	err    error
}

func (s *stubJobs) GetByID(ctx context.Context, jobID uuid.UUID) (*models.ScrapeJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byID[jobID], nil
}

func (s *stubJobs) ListRecent(ctx context.Context, limit int) ([]*models.ScrapeJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > len(s.recent) {
		limit = len(s.recent)
	}
	return s.recent[:limit], nil
}

// stubListings serves listings from per-job maps and a flat pool for
// criteria queries.
type stubListings struct {
	auctions map[uuid.UUID][]*models.AuctionListing
	usedCars map[uuid.UUID][]*models.UsedCarListing
	pool     []*models.UsedCarListing
	err      error
}

func (s *stubListings) GetAuctionByJobID(ctx context.Context, jobID uuid.UUID) ([]*models.AuctionListing, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.auctions[jobID], nil
}

func (s *stubListings) GetUsedCarByJobID(ctx context.Context, jobID uuid.UUID) ([]*models.UsedCarListing, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.usedCars[jobID], nil
}

func (s *stubListings) GetUsedCarByCriteria(ctx context.Context, platformIDs []int, make, model string, yearFrom, yearTo int) ([]*models.UsedCarListing, error) {
	if s.err != nil {
		return nil, s.err
	}
	wanted := make(map[int]bool, len(platformIDs))
	for _, id := range platformIDs {
		wanted[id] = true
	}
	var out []*models.UsedCarListing
	for _, l := range s.pool {
		if !wanted[l.PlatformID] {
			continue
		}
		if make != "" && (l.Make == nil || !strings.EqualFold(*l.Make, make)) {
			continue
		}
		if model != "" && (l.Model == nil || !strings.EqualFold(*l.Model, model)) {
			continue
		}
		if yearFrom != 0 && (l.Year == nil || *l.Year < yearFrom) {
			continue
		}
		if yearTo != 0 && (l.Year == nil || *l.Year > yearTo) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// stubPlatforms serves seeded platform rows.
type stubPlatforms struct {
	rows []*models.Platform
	err  error
}

func (s *stubPlatforms) List(ctx context.Context, platformType string) ([]*models.Platform, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Platform
	for _, p := range s.rows {
		if platformType == "" || string(p.PlatformType) == platformType {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPlatforms) NamesByIDs(ctx context.Context, ids []int) (map[int]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	names := make(map[int]string)
	for _, p := range s.rows {
		for _, id := range ids {
			if p.ID == id {
				names[id] = p.DisplayName
			}
		}
	}
	return names, nil
}

// stubWatches stores watch entries in memory.
type stubWatches struct {
	entries map[int]*models.WatchEntry
	nextID  int
	deleted []int
	err     error
}

func newStubWatches() *stubWatches {
	return &stubWatches{entries: make(map[int]*models.WatchEntry)}
}

func (s *stubWatches) Create(ctx context.Context, entry *models.WatchEntry) error {
	if s.err != nil {
		return s.err
	}
	s.nextID++
	entry.ID = s.nextID
	entry.CreatedAt = time.Now()
	s.entries[entry.ID] = entry
	return nil
}

func (s *stubWatches) GetByID(ctx context.Context, id int) (*models.WatchEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries[id], nil
}

func (s *stubWatches) List(ctx context.Context) ([]*models.WatchEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*models.WatchEntry, 0, len(s.entries))
	for i := 1; i <= s.nextID; i++ {
		if e, ok := s.entries[i]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubWatches) Delete(ctx context.Context, id int) error {
	if s.err != nil {
		return s.err
	}
	delete(s.entries, id)
	s.deleted = append(s.deleted, id)
	return nil
}

// stubTrends returns canned trend points and records the query it saw.
type stubTrends struct {
	points    []*models.TrendPoint
	err       error
	gotMake   string
	gotModel  string
	gotMonths int
}

func (s *stubTrends) Trend(ctx context.Context, make, model string, months int) ([]*models.TrendPoint, error) {
	s.gotMake, s.gotModel, s.gotMonths = make, model, months
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

// stubRates returns a fixed exchange rate.
type stubRates struct{ rate float64 }

func (s *stubRates) EURUSD(ctx context.Context) float64 { return s.rate }

// stubStatsCache is an in-memory stats cache recording stored keys.
type stubStatsCache struct {
	mu    sync.Mutex
	store map[string]string
	sets  []string
}

func newStubStatsCache() *stubStatsCache {
	return &stubStatsCache{store: make(map[string]string)}
}

func (s *stubStatsCache) GenerateStatsKey(kind, jobID string) string {
	return "stats:" + strings.ToLower(kind) + ":" + strings.ToLower(jobID)
}

func (s *stubStatsCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.store[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *stubStatsCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = string(data)
	s.sets = append(s.sets, key)
	return nil
}

func testRegistry() *scraper.Registry {
	r := scraper.NewRegistry()
	r.Register(scraper.Source{Key: "bat", DisplayName: "Bring a Trailer", Kind: scraper.KindAuction, Region: "USA"})
	r.Register(scraper.Source{Key: "carsandbids", DisplayName: "Cars & Bids", Kind: scraper.KindAuction, Region: "USA"})
	r.Register(scraper.Source{Key: "autotrader", DisplayName: "AutoTrader", Kind: scraper.KindUsedCar, Region: "USA"})
	r.Register(scraper.Source{Key: "carscom", DisplayName: "Cars.com", Kind: scraper.KindUsedCar, Region: "USA"})
	r.Register(scraper.Source{Key: "mobilede", DisplayName: "Mobile.de", Kind: scraper.KindUsedCar, Region: "Germany"})
	r.Register(scraper.Source{Key: "autoscout24", DisplayName: "AutoScout24", Kind: scraper.KindUsedCar, Region: "Germany"})
	r.Register(scraper.Source{Key: "kleinanzeigen", DisplayName: "eBay Kleinanzeigen", Kind: scraper.KindUsedCar, Region: "Germany"})
	return r
}

func testPlatformRows() []*models.Platform {
	return []*models.Platform{
		{ID: 1, Name: "bat", DisplayName: "Bring a Trailer", PlatformType: models.PlatformTypeAuction, Region: models.RegionUSA, IsActive: true},
		{ID: 2, Name: "carsandbids", DisplayName: "Cars & Bids", PlatformType: models.PlatformTypeAuction, Region: models.RegionUSA, IsActive: true},
		{ID: 3, Name: "autotrader", DisplayName: "AutoTrader", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionUSA, IsActive: true},
		{ID: 4, Name: "carscom", DisplayName: "Cars.com", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionUSA, IsActive: true},
		{ID: 5, Name: "mobilede", DisplayName: "Mobile.de", PlatformType: models.PlatformTypeUsedCar, Region: models.RegionGermany, IsActive: true},
	}
}

// testServer wires a server around in-memory stubs.
type testServer struct {
	server    *Server
	submitter *stubSubmitter
	jobs      *stubJobs
	listings  *stubListings
	platforms *stubPlatforms
	watches   *stubWatches
	trends    *stubTrends
}

func createTestServerWithConfig(cfg config.ServerConfig) *testServer {
	ts := &testServer{
		submitter: &stubSubmitter{sub: job.Submission{JobID: uuid.New()}},
		jobs:      &stubJobs{byID: make(map[uuid.UUID]*models.ScrapeJob)},
		listings: &stubListings{
			auctions: make(map[uuid.UUID][]*models.AuctionListing),
			usedCars: make(map[uuid.UUID][]*models.UsedCarListing),
		},
		platforms: &stubPlatforms{rows: testPlatformRows()},
		watches:   newStubWatches(),
		trends:    &stubTrends{},
	}
	ts.server = NewServer(Deps{
		Submitter: ts.submitter,
		Jobs:      ts.jobs,
		Listings:  ts.listings,
		Platforms: ts.platforms,
		Watches:   ts.watches,
		Trends:    ts.trends,
		Rates:     &stubRates{rate: 1.1},
		Registry:  testRegistry(),
		Log:       testLog(),
	}, cfg)
	return ts
}

func createTestServer() *testServer {
	return createTestServerWithConfig(config.ServerConfig{Host: "127.0.0.1", Port: "8080"})
}

// do routes a request through the full middleware chain.
func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeJSON(t, w, &resp)
	return resp.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	ts := createTestServer()

	w := ts.do("GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	decodeJSON(t, w, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy status, got %q", resp["status"])
	}
	if resp["service"] != "car-scanner" {
		t.Errorf("expected car-scanner service, got %q", resp["service"])
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS header on response, got %q", got)
	}
}

func TestAuctionSearchDefaults(t *testing.T) {
	ts := createTestServer()

	w := ts.do("POST", "/api/v1/auctions/search",
		`{"make":"BMW","model":"M3","year_from":2015,"year_to":2018,"time_filter":"1y","bypass_cache":true}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req := ts.submitter.last(t)
	if got := strings.Join(req.Platforms, ","); got != "bat,carsandbids" {
		t.Errorf("expected default auction platforms, got %q", got)
	}
	if req.JobType != models.JobTypeAuction {
		t.Errorf("expected auction job type, got %q", req.JobType)
	}
	if !req.BypassCache {
		t.Error("expected bypass_cache to carry through")
	}
	if req.Criteria.Make != "BMW" || req.Criteria.Model != "M3" {
		t.Errorf("criteria did not carry through: %+v", req.Criteria)
	}
	if req.Criteria.YearFrom != 2015 || req.Criteria.YearTo != 2018 {
		t.Errorf("year range did not carry through: %+v", req.Criteria)
	}
	if req.Criteria.TimeFilter != models.TimeFilter1Y {
		t.Errorf("expected time filter 1y, got %q", req.Criteria.TimeFilter)
	}

	var resp searchResponse
	decodeJSON(t, w, &resp)
	if resp.JobID != ts.submitter.sub.JobID.String() {
		t.Errorf("expected job ID %s, got %s", ts.submitter.sub.JobID, resp.JobID)
	}
	if resp.Status != "pending" || resp.Cached {
		t.Errorf("expected fresh pending submission, got %+v", resp)
	}
}

func TestAuctionSearchCacheHit(t *testing.T) {
	ts := createTestServer()
	ts.submitter.sub = job.Submission{JobID: uuid.New(), Cached: true}

	w := ts.do("POST", "/api/v1/auctions/search", `{"make":"BMW"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp searchResponse
	decodeJSON(t, w, &resp)
	if !resp.Cached {
		t.Error("expected cached flag")
	}
	if resp.Status != "completed" {
		t.Errorf("a cache hit points at a completed job, got %q", resp.Status)
	}
}

func TestSearchValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"missing make", `{}`, "MISSING_MAKE"},
		{"blank make", `{"make":"   "}`, "MISSING_MAKE"},
		{"year too low", `{"make":"BMW","year_from":1800}`, "INVALID_PARAMETER"},
		{"year too high", `{"make":"BMW","year_to":2200}`, "INVALID_PARAMETER"},
		{"inverted years", `{"make":"BMW","year_from":2020,"year_to":2015}`, "INVALID_PARAMETER"},
		{"bad time filter", `{"make":"BMW","time_filter":"3y"}`, "INVALID_PARAMETER"},
		{"unknown platform", `{"make":"BMW","platforms":["nope"]}`, "UNKNOWN_PLATFORM"},
		{"used-car platform", `{"make":"BMW","platforms":["autotrader"]}`, "INVALID_PARAMETER"},
		{"malformed body", `{"make":`, "INVALID_BODY"},
		{"unknown field", `{"make":"BMW","color":"red"}`, "INVALID_BODY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := createTestServer()
			w := ts.do("POST", "/api/v1/auctions/search", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := errorCode(t, w); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
			if len(ts.submitter.requests) != 0 {
				t.Error("invalid request must not reach the orchestrator")
			}
		})
	}
}

func TestUsedCarSearchRegionDefaults(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantPlatforms string
	}{
		{"no region defaults to usa", `{"make":"BMW"}`, "autotrader,carscom"},
		{"usa region", `{"make":"BMW","region":"usa"}`, "autotrader,carscom"},
		{"germany region", `{"make":"BMW","region":"germany"}`, "mobilede,autoscout24,kleinanzeigen"},
		{"explicit platforms win", `{"make":"BMW","region":"germany","platforms":["mobilede"]}`, "mobilede"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := createTestServer()
			w := ts.do("POST", "/api/v1/used-cars/search", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			req := ts.submitter.last(t)
			if got := strings.Join(req.Platforms, ","); got != tt.wantPlatforms {
				t.Errorf("expected platforms %s, got %s", tt.wantPlatforms, got)
			}
			if req.JobType != models.JobTypeUsedCar {
				t.Errorf("expected used_car job type, got %q", req.JobType)
			}
		})
	}
}

func TestUsedCarSearchUnknownRegion(t *testing.T) {
	ts := createTestServer()

	w := ts.do("POST", "/api/v1/used-cars/search", `{"make":"BMW","region":"france"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := errorCode(t, w); got != "INVALID_PARAMETER" {
		t.Errorf("expected INVALID_PARAMETER, got %s", got)
	}
}

func TestSubmitterErrorSurfaces(t *testing.T) {
	ts := createTestServer()
	ts.submitter.err = errors.NewStorageError("create scrape job", fmt.Errorf("connection refused"))

	w := ts.do("POST", "/api/v1/auctions/search", `{"make":"BMW"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := errorCode(t, w); got != "STORAGE_ERROR" {
		t.Errorf("expected STORAGE_ERROR, got %s", got)
	}
}

func TestAuctionResultsCompleted(t *testing.T) {
	ts := createTestServer()

	jobID := uuid.New()
	ts.jobs.byID[jobID] = &models.ScrapeJob{
		ID:                 jobID,
		Status:             models.JobStatusCompleted,
		Progress:           100,
		TotalResults:       5,
		PlatformsRequested: "bat,carsandbids",
		JobType:            models.JobTypeAuction,
		CreatedAt:          time.Now(),
	}
	ts.listings.auctions[jobID] = []*models.AuctionListing{
		{ID: 1, PlatformID: 1, JobID: jobID.String(), Make: strptr("BMW"), Model: strptr("M3"), Year: iptr(2016), SoldPrice: fptr(30000), IsSold: true},
		{ID: 2, PlatformID: 1, JobID: jobID.String(), Make: strptr("BMW"), Model: strptr("M3"), Year: iptr(2017), SoldPrice: fptr(35000), IsSold: true},
		{ID: 3, PlatformID: 1, JobID: jobID.String(), Make: strptr("BMW"), Model: strptr("M3"), Year: iptr(2018), SoldPrice: fptr(40000), IsSold: true},
		{ID: 4, PlatformID: 2, JobID: jobID.String(), Make: strptr("BMW"), Model: strptr("M3"), Year: iptr(2015), StartingBid: fptr(20000)},
		{ID: 5, PlatformID: 2, JobID: jobID.String(), Make: strptr("BMW"), Model: strptr("M3"), Year: iptr(2016), StartingBid: fptr(22000)},
	}

	w := ts.do("GET", "/api/v1/auctions/results/"+jobID.String(), "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		JobID        string `json:"jobId"`
		Status       string `json:"status"`
		TotalResults int    `json:"totalResults"`
		Listings     []struct {
			Platform  string   `json:"platform"`
			Make      *string  `json:"make"`
			SoldPrice *float64 `json:"soldPrice"`
		} `json:"listings"`
		Statistics map[string]interface{} `json:"statistics"`
	}
	decodeJSON(t, w, &resp)

	if resp.Status != "completed" || resp.TotalResults != 5 {
		t.Errorf("expected 5 completed results, got %+v", resp)
	}
	if len(resp.Listings) != 5 {
		t.Fatalf("expected 5 listings, got %d", len(resp.Listings))
	}
	for i := 0; i < 3; i++ {
		if resp.Listings[i].Platform != "Bring a Trailer" {
			t.Errorf("listing %d: expected Bring a Trailer, got %q", i, resp.Listings[i].Platform)
		}
	}
	for i := 3; i < 5; i++ {
		if resp.Listings[i].Platform != "Cars & Bids" {
			t.Errorf("listing %d: expected Cars & Bids, got %q", i, resp.Listings[i].Platform)
		}
	}
	if got := resp.Statistics["total_listings"]; got != float64(5) {
		t.Errorf("expected 5 total listings in stats, got %v", got)
	}
	if got := resp.Statistics["total_sold"]; got != float64(3) {
		t.Errorf("expected 3 sold in stats, got %v", got)
	}
	if got := resp.Statistics["sell_through_rate"]; got != float64(60) {
		t.Errorf("expected 60%% sell-through, got %v", got)
	}
	if got := resp.Statistics["avg_sold_price"]; got != float64(35000) {
		t.Errorf("expected 35000 avg sold price, got %v", got)
	}
}

func TestAuctionResultsStatsCached(t *testing.T) {
	ts := createTestServer()
	cache := newStubStatsCache()
	ts.server.statsCache = cache

	jobID := uuid.New()
	ts.jobs.byID[jobID] = &models.ScrapeJob{
		ID:      jobID,
		Status:  models.JobStatusCompleted,
		JobType: models.JobTypeAuction,
	}
	ts.listings.auctions[jobID] = []*models.AuctionListing{
		{ID: 1, PlatformID: 1, JobID: jobID.String(), SoldPrice: fptr(30000), IsSold: true},
	}

	w := ts.do("GET", "/api/v1/auctions/results/"+jobID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	key := "stats:auction:" + jobID.String()
	if len(cache.sets) != 1 || cache.sets[0] != key {
		t.Fatalf("expected one stats write under %q, got %v", key, cache.sets)
	}

	// A second read must serve the cached map, not recompute it.
	cache.store[key] = `{"total_listings":99}`
	w = ts.do("GET", "/api/v1/auctions/results/"+jobID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Statistics map[string]interface{} `json:"statistics"`
	}
	decodeJSON(t, w, &resp)
	if got := resp.Statistics["total_listings"]; got != float64(99) {
		t.Errorf("expected cached statistics to be served, got %v", got)
	}
	if len(cache.sets) != 1 {
		t.Errorf("expected no rewrite on a cache hit, got %d writes", len(cache.sets))
	}
}

func TestAuctionResultsInFlight(t *testing.T) {
	ts := createTestServer()

	jobID := uuid.New()
	ts.jobs.byID[jobID] = &models.ScrapeJob{
		ID:       jobID,
		Status:   models.JobStatusRunning,
		Progress: 40,
		JobType:  models.JobTypeAuction,
	}

	w := ts.do("GET", "/api/v1/auctions/results/"+jobID.String(), "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]interface{}
	decodeJSON(t, w, &resp)
	if resp["status"] != "running" {
		t.Errorf("expected running status, got %v", resp["status"])
	}
	if resp["progress"] != float64(40) {
		t.Errorf("expected progress 40, got %v", resp["progress"])
	}
	if _, ok := resp["listings"]; ok {
		t.Error("an unfinished job must not return listings")
	}
}

func TestAuctionResultsErrors(t *testing.T) {
	ts := createTestServer()

	usedCarJob := uuid.New()
	ts.jobs.byID[usedCarJob] = &models.ScrapeJob{
		ID:      usedCarJob,
		Status:  models.JobStatusCompleted,
		JobType: models.JobTypeUsedCar,
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"bad id", "/api/v1/auctions/results/not-a-uuid", http.StatusBadRequest, "INVALID_PARAMETER"},
		{"unknown job", "/api/v1/auctions/results/" + uuid.NewString(), http.StatusNotFound, "NOT_FOUND"},
		{"wrong job type", "/api/v1/auctions/results/" + usedCarJob.String(), http.StatusBadRequest, "INVALID_PARAMETER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do("GET", tt.path, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if got := errorCode(t, w); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestUsedCarResultsCompleted(t *testing.T) {
	ts := createTestServer()

	jobID := uuid.New()
	ts.jobs.byID[jobID] = &models.ScrapeJob{
		ID:           jobID,
		Status:       models.JobStatusCompleted,
		Progress:     100,
		TotalResults: 2,
		JobType:      models.JobTypeUsedCar,
	}
	ts.listings.usedCars[jobID] = []*models.UsedCarListing{
		{ID: 1, PlatformID: 5, JobID: jobID.String(), Make: strptr("BMW"), Model: strptr("M3"), ListPrice: fptr(45000), Currency: "EUR", IsActive: true},
		{ID: 2, PlatformID: 5, JobID: jobID.String(), Make: strptr("BMW"), Model: strptr("M3"), ListPrice: fptr(47000), Currency: "EUR", IsActive: true},
	}

	w := ts.do("GET", "/api/v1/used-cars/results/"+jobID.String(), "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		TotalResults int `json:"totalResults"`
		Listings     []struct {
			Platform string `json:"platform"`
		} `json:"listings"`
		Statistics map[string]interface{} `json:"statistics"`
	}
	decodeJSON(t, w, &resp)
	if resp.TotalResults != 2 || len(resp.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %+v", resp)
	}
	if resp.Listings[0].Platform != "Mobile.de" {
		t.Errorf("expected Mobile.de, got %q", resp.Listings[0].Platform)
	}
	if got := resp.Statistics["avg_list_price"]; got != float64(46000) {
		t.Errorf("expected 46000 avg list price, got %v", got)
	}
}

func TestJobStatusEndpoint(t *testing.T) {
	ts := createTestServer()

	jobID := uuid.New()
	ts.jobs.byID[jobID] = &models.ScrapeJob{
		ID:           jobID,
		Status:       models.JobStatusFailed,
		Progress:     50,
		JobType:      models.JobTypeAuction,
		ErrorMessage: strptr("platform lookup for bat: connection refused"),
	}

	w := ts.do("GET", "/api/v1/jobs/"+jobID.String(), "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		JobID        string  `json:"jobId"`
		Status       string  `json:"status"`
		ErrorMessage *string `json:"errorMessage"`
	}
	decodeJSON(t, w, &resp)
	if resp.JobID != jobID.String() || resp.Status != "failed" {
		t.Errorf("unexpected job payload: %+v", resp)
	}
	if resp.ErrorMessage == nil || !strings.Contains(*resp.ErrorMessage, "platform lookup") {
		t.Errorf("expected error message to carry through, got %v", resp.ErrorMessage)
	}

	if w := ts.do("GET", "/api/v1/jobs/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", w.Code)
	}
}

func TestListJobs(t *testing.T) {
	ts := createTestServer()
	for i := 0; i < 3; i++ {
		ts.jobs.recent = append(ts.jobs.recent, &models.ScrapeJob{
			ID:      uuid.New(),
			Status:  models.JobStatusCompleted,
			JobType: models.JobTypeAuction,
		})
	}

	w := ts.do("GET", "/api/v1/jobs?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Jobs  []json.RawMessage `json:"jobs"`
		Count int               `json:"count"`
	}
	decodeJSON(t, w, &resp)
	if resp.Count != 2 || len(resp.Jobs) != 2 {
		t.Errorf("expected 2 jobs, got %+v", resp.Count)
	}

	if w := ts.do("GET", "/api/v1/jobs?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for limit 0, got %d", w.Code)
	}
	if w := ts.do("GET", "/api/v1/jobs?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-integer limit, got %d", w.Code)
	}
}

func TestComparisonAnalyze(t *testing.T) {
	ts := createTestServer()
	ts.listings.pool = []*models.UsedCarListing{
		{ID: 1, PlatformID: 3, Make: strptr("BMW"), Model: strptr("M3"), ListPrice: fptr(30000), Currency: "USD"},
		{ID: 2, PlatformID: 3, Make: strptr("BMW"), Model: strptr("M3"), ListPrice: fptr(32000), Currency: "USD"},
		{ID: 3, PlatformID: 4, Make: strptr("BMW"), Model: strptr("M3"), ListPrice: fptr(34000), Currency: "USD"},
		{ID: 4, PlatformID: 5, Make: strptr("BMW"), Model: strptr("M3"), ListPrice: fptr(25000), Currency: "EUR"},
		{ID: 5, PlatformID: 5, Make: strptr("BMW"), Model: strptr("M3"), ListPrice: fptr(27000), Currency: "EUR"},
		{ID: 6, PlatformID: 3, Make: strptr("Porsche"), Model: strptr("911"), ListPrice: fptr(90000), Currency: "USD"},
	}

	w := ts.do("POST", "/api/v1/comparison/analyze", `{"make":"BMW","model":"M3"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Make            string                 `json:"make"`
		USAListings     int                    `json:"usaListings"`
		GermanyListings int                    `json:"germanyListings"`
		Comparison      map[string]interface{} `json:"comparison"`
	}
	decodeJSON(t, w, &resp)

	if resp.USAListings != 3 || resp.GermanyListings != 2 {
		t.Errorf("expected 3 USA and 2 Germany listings, got %d and %d", resp.USAListings, resp.GermanyListings)
	}
	if got := resp.Comparison["eur_usd_rate"]; got != 1.1 {
		t.Errorf("expected rate 1.1, got %v", got)
	}
	// USA avg 32000; Germany avg 26000 EUR = 28600 USD at 1.1.
	if got := resp.Comparison["price_delta_usd"]; got != float64(3400) {
		t.Errorf("expected price delta 3400, got %v", got)
	}
	if got := resp.Comparison["arbitrage_direction"]; got != "Buy in Germany" {
		t.Errorf("expected Buy in Germany, got %v", got)
	}
	germany, ok := resp.Comparison["germany"].(map[string]interface{})
	if !ok {
		t.Fatal("expected germany block in comparison")
	}
	if got := germany["avg_price_usd"]; got != float64(28600) {
		t.Errorf("expected 28600 germany avg in USD, got %v", got)
	}
}

func TestComparisonRequiresMake(t *testing.T) {
	ts := createTestServer()

	w := ts.do("POST", "/api/v1/comparison/analyze", `{"model":"M3"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := errorCode(t, w); got != "MISSING_MAKE" {
		t.Errorf("expected MISSING_MAKE, got %s", got)
	}
}

func TestWatchlistCreate(t *testing.T) {
	ts := createTestServer()

	w := ts.do("POST", "/api/v1/watchlist",
		`{"make":"Porsche","model":"911","year_from":2005,"platforms":["bat","carsandbids"],"interval_hours":12}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.WatchEntry
	decodeJSON(t, w, &resp)
	if resp.ID != 1 {
		t.Errorf("expected assigned ID 1, got %d", resp.ID)
	}
	if resp.Platforms != "bat,carsandbids" || resp.IntervalHours != 12 {
		t.Errorf("unexpected entry: %+v", resp)
	}
	if !resp.IsActive {
		t.Error("new entries start active")
	}
	if resp.Model == nil || *resp.Model != "911" {
		t.Errorf("expected model 911, got %v", resp.Model)
	}
}

func TestWatchlistCreateDefaultsInterval(t *testing.T) {
	ts := createTestServer()

	w := ts.do("POST", "/api/v1/watchlist", `{"make":"Porsche","platforms":["bat"]}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var resp models.WatchEntry
	decodeJSON(t, w, &resp)
	if resp.IntervalHours != 24 {
		t.Errorf("expected default interval 24h, got %d", resp.IntervalHours)
	}
}

func TestWatchlistCreateValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"missing make", `{"platforms":["bat"]}`, "MISSING_MAKE"},
		{"no platforms", `{"make":"Porsche"}`, "INVALID_PARAMETER"},
		{"unknown platform", `{"make":"Porsche","platforms":["nope"]}`, "UNKNOWN_PLATFORM"},
		{"negative interval", `{"make":"Porsche","platforms":["bat"],"interval_hours":-2}`, "INVALID_PARAMETER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := createTestServer()
			w := ts.do("POST", "/api/v1/watchlist", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := errorCode(t, w); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestWatchlistListAndDelete(t *testing.T) {
	ts := createTestServer()
	ts.do("POST", "/api/v1/watchlist", `{"make":"Porsche","platforms":["bat"]}`)
	ts.do("POST", "/api/v1/watchlist", `{"make":"BMW","platforms":["autotrader"]}`)

	w := ts.do("GET", "/api/v1/watchlist", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var listResp struct {
		Entries []models.WatchEntry `json:"entries"`
		Count   int                 `json:"count"`
	}
	decodeJSON(t, w, &listResp)
	if listResp.Count != 2 {
		t.Fatalf("expected 2 entries, got %d", listResp.Count)
	}

	if w := ts.do("DELETE", "/api/v1/watchlist/1", ""); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if len(ts.watches.deleted) != 1 || ts.watches.deleted[0] != 1 {
		t.Errorf("expected entry 1 deleted, got %v", ts.watches.deleted)
	}

	if w := ts.do("DELETE", "/api/v1/watchlist/99", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown entry, got %d", w.Code)
	}
	if w := ts.do("DELETE", "/api/v1/watchlist/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestListPlatforms(t *testing.T) {
	ts := createTestServer()

	w := ts.do("GET", "/api/v1/platforms", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Platforms []models.Platform `json:"platforms"`
		Count     int               `json:"count"`
	}
	decodeJSON(t, w, &resp)
	if resp.Count != 5 {
		t.Errorf("expected 5 platforms, got %d", resp.Count)
	}

	w = ts.do("GET", "/api/v1/platforms?type=used_car", "")
	decodeJSON(t, w, &resp)
	if resp.Count != 3 {
		t.Errorf("expected 3 used-car platforms, got %d", resp.Count)
	}

	if w := ts.do("GET", "/api/v1/platforms?type=boats", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad type, got %d", w.Code)
	}
}

func TestTrendEndpoint(t *testing.T) {
	ts := createTestServer()
	ts.trends.points = []*models.TrendPoint{
		{Month: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), AvgPrice: 41000, MinPrice: 35000, MaxPrice: 52000, Count: 14},
		{Month: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), AvgPrice: 43000, MinPrice: 36000, MaxPrice: 55000, Count: 11},
	}

	w := ts.do("GET", "/api/v1/history/trend?make=BMW&model=M3", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Points []models.TrendPoint `json:"points"`
		Count  int                 `json:"count"`
	}
	decodeJSON(t, w, &resp)
	if resp.Count != 2 {
		t.Errorf("expected 2 trend points, got %d", resp.Count)
	}
	if ts.trends.gotMake != "BMW" || ts.trends.gotModel != "M3" || ts.trends.gotMonths != 12 {
		t.Errorf("unexpected trend query: %s %s %d", ts.trends.gotMake, ts.trends.gotModel, ts.trends.gotMonths)
	}

	if w := ts.do("GET", "/api/v1/history/trend?model=M3", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without make, got %d", w.Code)
	}
	if w := ts.do("GET", "/api/v1/history/trend?make=BMW&months=999", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for months out of range, got %d", w.Code)
	}
}

func TestTrendDisabled(t *testing.T) {
	ts := createTestServer()
	ts.server.trends = nil

	w := ts.do("GET", "/api/v1/history/trend?make=BMW", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if got := errorCode(t, w); got != "HISTORY_DISABLED" {
		t.Errorf("expected HISTORY_DISABLED, got %s", got)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	ts := createTestServerWithConfig(config.ServerConfig{
		Host:      "127.0.0.1",
		Port:      "8080",
		RateRPS:   1,
		RateBurst: 1,
	})

	if w := ts.do("GET", "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}
	w := ts.do("GET", "/health", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := errorCode(t, w); got != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("expected RATE_LIMIT_EXCEEDED, got %s", got)
	}
}

func TestCompression(t *testing.T) {
	ts := createTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", got)
	}
	gz, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gz.Close()
	var resp map[string]string
	if err := json.NewDecoder(gz).Decode(&resp); err != nil {
		t.Fatalf("decode gzipped response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("unexpected body: %v", resp)
	}
}

func TestConcurrentRequests(t *testing.T) {
	ts := createTestServer()

	var wg sync.WaitGroup
	codes := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			ts.server.router.ServeHTTP(w, req)
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
	}
}
