package scraper

import (
	"io"
	"testing"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
)

func testLogger() *logging.Logger {
	l := logging.NewLogger(logging.LevelError, logging.FormatText)
	l.SetOutput(io.Discard)
	return l
}

func searchCriteria(mk, model string) models.SearchCriteria {
	return models.SearchCriteria{Make: mk, Model: model}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(Source{Key: "bat", DisplayName: "Bring a Trailer", Kind: KindAuction, Region: "USA", Auction: &BringATrailer{}})
	r.Register(Source{Key: "mobilede", DisplayName: "Mobile.de", Kind: KindUsedCar, Region: "Germany", UsedCar: &MobileDe{}})

	src, ok := r.Get("bat")
	if !ok || src.DisplayName != "Bring a Trailer" {
		t.Fatalf("Get(bat) = (%+v, %v)", src, ok)
	}
	if _, ok := r.Get("BAT"); !ok {
		t.Error("expected lookup to be case-insensitive")
	}
	if _, ok := r.Get("craigslist"); ok {
		t.Error("expected unknown key to miss")
	}

	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "bat" || keys[1] != "mobilede" {
		t.Errorf("Keys() = %v, want registration order", keys)
	}
}

func TestRegistryByRegion(t *testing.T) {
	r := NewRegistry()
	r.Register(Source{Key: "carscom", Kind: KindUsedCar, Region: "USA", UsedCar: &CarsCom{}})
	r.Register(Source{Key: "autotrader", Kind: KindUsedCar, Region: "USA", UsedCar: &Autotrader{}})
	r.Register(Source{Key: "mobilede", Kind: KindUsedCar, Region: "Germany", UsedCar: &MobileDe{}})
	r.Register(Source{Key: "stubbed", Kind: KindUsedCar, Region: "USA"})

	usa := r.ByRegion("usa")
	if len(usa) != 2 || usa[0] != "autotrader" || usa[1] != "carscom" {
		t.Errorf("ByRegion(usa) = %v, want sorted implemented sources", usa)
	}
	if got := r.ByRegion("germany"); len(got) != 1 || got[0] != "mobilede" {
		t.Errorf("ByRegion(germany) = %v", got)
	}
}

func TestSourceIsStub(t *testing.T) {
	if !(Source{Key: "x"}).IsStub() {
		t.Error("source without implementations should be a stub")
	}
	if (Source{Key: "bat", Auction: &BringATrailer{}}).IsStub() {
		t.Error("source with an auction implementation is not a stub")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(Deps{Log: testLogger()})

	want := []string{"bat", "carsandbids", "autotrader", "carscom", "cargurus", "mobilede", "autoscout24", "kleinanzeigen"}
	keys := r.Keys()
	if len(keys) != len(want) {
		t.Fatalf("expected %d sources, got %d", len(want), len(keys))
	}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("key[%d] = %q, want %q", i, keys[i], key)
		}
		src, _ := r.Get(key)
		if src.IsStub() {
			t.Errorf("source %q has no implementation", key)
		}
	}
}

func TestBotMarker(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Access Denied", true},
		{"Please complete the CAPTCHA", true},
		{"Security check required", true},
		{"You have been blocked", true},
		{"BMW M3 for sale - AutoTrader", false},
		{"", false},
	}

	for _, tt := range tests {
		if _, got := BotMarker(tt.title); got != tt.want {
			t.Errorf("BotMarker(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

func TestOptionsReport(t *testing.T) {
	var gotPage, gotTotal, gotCount int
	opts := Options{MaxPages: 5, OnProgress: func(page, totalPages, listings int) {
		gotPage, gotTotal, gotCount = page, totalPages, listings
	}}
	opts.report(2, 5, 40)
	if gotPage != 2 || gotTotal != 5 || gotCount != 40 {
		t.Errorf("report passed (%d, %d, %d)", gotPage, gotTotal, gotCount)
	}

	// A nil callback must be a no-op, not a panic.
	Options{}.report(1, 1, 0)
}
