package scraper

import (
	"testing"
)

func TestAutoScout24PageURL(t *testing.T) {
	s := NewAutoScout24(Deps{Log: testLogger()})

	c := searchCriteria("BMW", "M3")
	c.YearFrom = 2010
	c.Keyword = "Competition Paket"
	got := s.pageURL(c, 2)
	want := "https://www.autoscout24.de/lst/bmw/m3?sort=standard&desc=0&ustate=N,U&size=20&page=2&cy=D&atype=C&fregfrom=2010&search_query=Competition+Paket"
	if got != want {
		t.Errorf("pageURL = %q, want %q", got, want)
	}

	got = s.pageURL(searchCriteria("Alfa Romeo", ""), 1)
	if got != "https://www.autoscout24.de/lst/alfa-romeo?sort=standard&desc=0&ustate=N,U&size=20&page=1&cy=D&atype=C" {
		t.Errorf("pageURL without model = %q", got)
	}
}

func TestAutoScout24ParseItem(t *testing.T) {
	s := NewAutoScout24(Deps{Log: testLogger()})

	item := map[string]interface{}{
		"vehicle": map[string]interface{}{
			"make":              "BMW",
			"model":             "M3",
			"modelVersionInput": "Competition",
		},
		"tracking": map[string]interface{}{
			"price":             "64500",
			"mileage":           "48000",
			"firstRegistration": "06-2018",
		},
		"location": map[string]interface{}{"zip": "80331", "city": "München"},
		"seller":   map[string]interface{}{"companyName": "Autohaus Müller"},
		"images":   []interface{}{"https://img.autoscout24.de/1.jpg"},
		"url":      "/angebote/bmw-m3-competition-abc",
	}

	l := s.parseItem(item)
	if l == nil {
		t.Fatal("expected listing from item")
	}
	if l.Year == nil || *l.Year != 2018 {
		t.Errorf("year = %v, want 2018 from firstRegistration", l.Year)
	}
	if l.ListPrice == nil || *l.ListPrice != 64500 {
		t.Errorf("price = %v, want 64500", l.ListPrice)
	}
	if l.Mileage == nil || *l.Mileage != 48000 {
		t.Errorf("mileage = %v, want 48000", l.Mileage)
	}
	if l.Trim == nil || *l.Trim != "Competition" {
		t.Errorf("trim = %v, want Competition", l.Trim)
	}
	if l.Location == nil || *l.Location != "80331 München" {
		t.Errorf("location = %v", l.Location)
	}
	if l.DealerName == nil || *l.DealerName != "Autohaus Müller" {
		t.Errorf("dealer = %v", l.DealerName)
	}
	if l.Description == nil || *l.Description != "BMW M3 Competition" {
		t.Errorf("title = %v", l.Description)
	}
	if l.URL == nil || *l.URL != "https://www.autoscout24.de/angebote/bmw-m3-competition-abc" {
		t.Errorf("url = %v", l.URL)
	}
	if l.Currency != "EUR" || !l.IsActive {
		t.Errorf("currency/active = %q/%v", l.Currency, l.IsActive)
	}
}

func TestAutoScout24ParseItemFormattedPriceFallback(t *testing.T) {
	s := NewAutoScout24(Deps{Log: testLogger()})

	item := map[string]interface{}{
		"vehicle": map[string]interface{}{"make": "VW", "model": "Golf"},
		"price":   map[string]interface{}{"priceFormatted": "€ 12.990,-"},
	}

	l := s.parseItem(item)
	if l == nil {
		t.Fatal("expected listing from item")
	}
	if l.ListPrice == nil || *l.ListPrice != 12990 {
		t.Errorf("price = %v, want 12990 from formatted fallback", l.ListPrice)
	}
	if l.Year != nil {
		t.Errorf("year = %v, want nil without registration data", l.Year)
	}
}

func TestAutoScout24ParseItemSkipsEmpty(t *testing.T) {
	s := NewAutoScout24(Deps{Log: testLogger()})

	if s.parseItem(map[string]interface{}{"tracking": map[string]interface{}{}}) != nil {
		t.Error("item without vehicle data should be skipped")
	}
	if s.parseItem(map[string]interface{}{"vehicle": map[string]interface{}{}}) != nil {
		t.Error("vehicle without make and model should be skipped")
	}
}
