package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestCarsComPageURL(t *testing.T) {
	s := NewCarsCom(Deps{Log: testLogger()})

	c := searchCriteria("Land Rover", "Range Rover")
	c.YearFrom = 2016
	c.YearTo = 2020
	got := s.pageURL(c, 2)
	want := "https://www.cars.com/shopping/results/?stock_type=used&maximum_distance=all&sort=best_match_desc&page_size=20&page=2&makes[]=land_rover&models[]=land_rover-range_rover&year_min=2016&year_max=2020"
	if got != want {
		t.Errorf("pageURL = %q, want %q", got, want)
	}
}

func TestCarsComParseCard(t *testing.T) {
	s := NewCarsCom(Deps{Log: testLogger()})

	html := `<html><body>
<div class="vehicle-card">
  <a class="vehicle-card-link" href="/vehicledetail/abc-123/"><h2>2020 Toyota Supra 3.0 Premium</h2></a>
  <span class="primary-price">$52,500</span>
  <div class="mileage">12,000 mi.</div>
  <div class="dealer-name">Toyota of Dallas</div>
  <div class="miles-from">Dallas, TX</div>
  <img src="https://images.cars.com/supra.jpg"/>
</div>
<div class="vehicle-card">
  <span class="primary-price">$10,000</span>
</div>
</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}

	cards := selectCards(doc, ".vehicle-card", "[class*='vehicle-card']", ".listing-row", "[data-qa='results-card']")
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}

	l := s.parseCard(cards[0])
	if l == nil {
		t.Fatal("expected listing from card")
	}
	if l.Year == nil || *l.Year != 2020 {
		t.Errorf("year = %v, want 2020", l.Year)
	}
	if l.Make == nil || *l.Make != "Toyota" {
		t.Errorf("make = %v, want Toyota", l.Make)
	}
	if l.Model == nil || *l.Model != "Supra" {
		t.Errorf("model = %v, want Supra", l.Model)
	}
	if l.Trim == nil || *l.Trim != "3.0 Premium" {
		t.Errorf("trim = %v, want 3.0 Premium", l.Trim)
	}
	if l.ListPrice == nil || *l.ListPrice != 52500 {
		t.Errorf("price = %v, want 52500", l.ListPrice)
	}
	if l.Mileage == nil || *l.Mileage != 12000 {
		t.Errorf("mileage = %v, want 12000", l.Mileage)
	}
	if l.DealerName == nil || *l.DealerName != "Toyota of Dallas" {
		t.Errorf("dealer = %v", l.DealerName)
	}
	if l.URL == nil || *l.URL != "https://www.cars.com/vehicledetail/abc-123/" {
		t.Errorf("url = %v", l.URL)
	}
	if l.ImageURL == nil || *l.ImageURL != "https://images.cars.com/supra.jpg" {
		t.Errorf("image = %v", l.ImageURL)
	}

	if s.parseCard(cards[1]) != nil {
		t.Error("card without a title should be skipped")
	}
}
