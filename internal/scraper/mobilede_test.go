package scraper

import (
	"testing"
)

const mobileDeFixture = `
<html><body>
<div data-testid="result-listing" class="result-listing">
  <a class="link--muted" href="/fahrzeuge/details.html?id=111">BMW M3 Competition</a>
  <span data-testid="price-label">64.500 &euro;</span>
  <span data-testid="mileage-label">48.000 km</span>
  <span data-testid="firstRegistration-label">EZ 06/2018</span>
  <div data-testid="seller-info">Autohaus Schmidt GmbH</div>
  <div data-testid="seller-address">70173 Stuttgart</div>
  <img src="https://img.mobile.de/m3.jpg"/>
</div>
<div data-testid="result-listing" class="result-listing">
  <a class="link--muted" href="https://suchen.mobile.de/fahrzeuge/details.html?id=222">2015 Porsche Cayman GTS</a>
  <span class="price-block">34.900 &euro;</span>
  <span class="rbt-regMil498">60.000 km</span>
</div>
</body></html>`

func TestMobileDeParseCards(t *testing.T) {
	s := NewMobileDe(Deps{Log: testLogger()})

	listings := s.parsePage(mobileDeFixture)
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	m3 := listings[0]
	if m3.Year == nil || *m3.Year != 2018 {
		t.Errorf("year = %v, want 2018 from first registration", m3.Year)
	}
	if m3.Make == nil || *m3.Make != "BMW" {
		t.Errorf("make = %v, want BMW", m3.Make)
	}
	if m3.Trim == nil || *m3.Trim != "Competition" {
		t.Errorf("trim = %v, want Competition", m3.Trim)
	}
	if m3.ListPrice == nil || *m3.ListPrice != 64500 {
		t.Errorf("price = %v, want 64500", m3.ListPrice)
	}
	if m3.Mileage == nil || *m3.Mileage != 48000 {
		t.Errorf("mileage = %v, want 48000", m3.Mileage)
	}
	if m3.DealerName == nil || *m3.DealerName != "Autohaus Schmidt GmbH" {
		t.Errorf("dealer = %v", m3.DealerName)
	}
	if m3.Location == nil || *m3.Location != "70173 Stuttgart" {
		t.Errorf("location = %v", m3.Location)
	}
	if m3.URL == nil || *m3.URL != "https://www.mobile.de/fahrzeuge/details.html?id=111" {
		t.Errorf("url = %v", m3.URL)
	}
	if m3.ImageURL == nil || *m3.ImageURL != "https://img.mobile.de/m3.jpg" {
		t.Errorf("image = %v", m3.ImageURL)
	}
	if m3.Currency != "EUR" {
		t.Errorf("currency = %q, want EUR", m3.Currency)
	}

	cayman := listings[1]
	if cayman.Year == nil || *cayman.Year != 2015 {
		t.Errorf("year = %v, want 2015 from title", cayman.Year)
	}
	if cayman.Model == nil || *cayman.Model != "Cayman" {
		t.Errorf("model = %v, want Cayman", cayman.Model)
	}
	if cayman.ListPrice == nil || *cayman.ListPrice != 34900 {
		t.Errorf("price = %v, want 34900", cayman.ListPrice)
	}
	if cayman.Mileage == nil || *cayman.Mileage != 60000 {
		t.Errorf("mileage = %v, want 60000", cayman.Mileage)
	}
	if cayman.ImageURL != nil {
		t.Errorf("image = %v, want nil without img tag", cayman.ImageURL)
	}
}

func TestMobileDeLinkCrawlFallback(t *testing.T) {
	s := NewMobileDe(Deps{Log: testLogger()})

	html := `<html><body>
<div class="vehicle"><a href="/fahrzeuge/details.html?id=333">Audi RS6 Avant</a></div>
</body></html>`

	listings := s.parsePage(html)
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing from link crawl, got %d", len(listings))
	}
	l := listings[0]
	if l.Make == nil || *l.Make != "Audi" {
		t.Errorf("make = %v, want Audi", l.Make)
	}
	if l.URL == nil || *l.URL != "https://www.mobile.de/fahrzeuge/details.html?id=333" {
		t.Errorf("url = %v", l.URL)
	}
}

func TestMobileDePageURL(t *testing.T) {
	s := NewMobileDe(Deps{Log: testLogger()})

	c := searchCriteria("BMW", "M3")
	c.Keyword = "Competition"
	c.YearFrom = 2015
	c.YearTo = 2020
	got := s.pageURL(c, 2)
	want := "https://suchen.mobile.de/fahrzeuge/search.html?isSearchRequest=true&damageUnrepaired=NO_DAMAGE_UNREPAIRED&scopeId=C&sfmr=false&pageNumber=2&q=BMW+M3+Competition&minFirstRegistrationDate=2015&maxFirstRegistrationDate=2020"
	if got != want {
		t.Errorf("pageURL = %q, want %q", got, want)
	}
}
