package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const batFixture = `<html><head><title>BMW M3 for sale</title></head><body>
<div class="listing-card listing-card-separate">
	<a class="image-overlay" href="/listing/1995-bmw-m3-42/"></a>
	<h3><a href="/listing/1995-bmw-m3-42/">1995 BMW M3 Coupe</a></h3>
	<div class="item-results">Sold for USD $40,250 on 2/14/24</div>
	<span class="bid-formatted bold">USD $40,250</span>
	<div class="thumbnail"><img src="https://img.example.com/m3.jpg"></div>
</div>
<div class="listing-card listing-card-separate">
	<h3><a href="/listing/1997-bmw-m3-sedan-7/">1997 BMW M3 Sedan</a></h3>
	<div class="item-results">Bid to USD $25,000 (not sold)</div>
	<span class="bid-formatted bold">USD $25,000</span>
	<div class="thumbnail"><img data-src="https://img.example.com/m3-sedan.jpg"></div>
</div>
<div class="listing-card listing-card-separate">
	<div class="item-tag-noreserve">No Reserve</div>
	<h3><a href="/listing/1999-bmw-m3-coupe-9/">1999 BMW M3 Coupe</a></h3>
	<div class="item-results">Sold for USD $31,000 on 1/3/24</div>
	<span class="bid-formatted bold">USD $31,000</span>
</div>
<div class="listing-card listing-card-separate">
	<h3><a href="/listing/bmw-style-wheels/">17x8 Wheels for a BMW M3</a></h3>
	<div class="item-results">Sold for USD $900 on 1/5/24</div>
	<span class="bid-formatted bold">USD $900</span>
</div>
</body></html>`

func TestBringATrailerParseCards(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(batFixture))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	s := NewBringATrailer(Deps{Log: testLogger()})
	listings := s.parseCards(selectCards(doc, ".listing-card.listing-card-separate"))

	// The wheels card is parts, not a vehicle.
	if len(listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(listings))
	}

	sold := listings[0]
	if sold.Year == nil || *sold.Year != 1995 {
		t.Errorf("sold listing year = %v, want 1995", sold.Year)
	}
	if sold.Make == nil || *sold.Make != "BMW" {
		t.Errorf("sold listing make = %v, want BMW", sold.Make)
	}
	if sold.Model == nil || *sold.Model != "M3 Coupe" {
		t.Errorf("sold listing model = %v", sold.Model)
	}
	if !sold.IsSold {
		t.Error("expected first listing to be sold")
	}
	if sold.SoldPrice == nil || *sold.SoldPrice != 40250 {
		t.Errorf("sold price = %v, want 40250", sold.SoldPrice)
	}
	if sold.StartingBid != nil {
		t.Error("sold listing should not carry a starting bid")
	}
	if sold.URL == nil || *sold.URL != batBaseURL+"/listing/1995-bmw-m3-42/" {
		t.Errorf("listing url = %v", sold.URL)
	}
	if sold.ImageURL == nil || *sold.ImageURL != "https://img.example.com/m3.jpg" {
		t.Errorf("image url = %v", sold.ImageURL)
	}

	unsold := listings[1]
	if unsold.IsSold {
		t.Error("expected 'not sold' listing to stay unsold")
	}
	if unsold.StartingBid == nil || *unsold.StartingBid != 25000 {
		t.Errorf("unsold high bid = %v, want 25000", unsold.StartingBid)
	}
	if unsold.SoldPrice != nil {
		t.Error("unsold listing should not carry a sold price")
	}
	if unsold.ImageURL == nil || *unsold.ImageURL != "https://img.example.com/m3-sedan.jpg" {
		t.Errorf("lazy-loaded image url = %v", unsold.ImageURL)
	}

	noReserve := listings[2]
	if noReserve.Description == nil || !strings.HasSuffix(*noReserve.Description, "[No Reserve]") {
		t.Errorf("no-reserve description = %v", noReserve.Description)
	}
}

func TestBringATrailerLinkCrawlFallback(t *testing.T) {
	html := `<html><body>
	<div class="bare-page">
		<div class="post"><h3><a href="/listing/1990-mazda-miata-3/">1990 Mazda MX-5 Miata</a></h3></div>
	</div>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	s := NewBringATrailer(Deps{Log: testLogger()})
	if cards := selectCards(doc, ".listing-card.listing-card-separate", "div[data-listing_id]"); cards != nil {
		t.Fatalf("selector strategy should find nothing, got %d", len(cards))
	}

	listings := s.parseCards(CrawlLinks(doc, "/listing/"))
	if len(listings) != 1 {
		t.Fatalf("expected 1 crawled listing, got %d", len(listings))
	}
	l := listings[0]
	if l.Year == nil || *l.Year != 1990 {
		t.Errorf("crawled year = %v, want 1990", l.Year)
	}
	if l.Make == nil || *l.Make != "Mazda" {
		t.Errorf("crawled make = %v", l.Make)
	}
}

func TestBringATrailerSearchURL(t *testing.T) {
	s := NewBringATrailer(Deps{Log: testLogger()})

	tests := []struct {
		mk, model, want string
	}{
		{"BMW", "M3", "https://bringatrailer.com/bmw/m3/"},
		{"Alfa Romeo", "", "https://bringatrailer.com/alfa-romeo/"},
		{"Mercedes-Benz", "300 SL", "https://bringatrailer.com/mercedes-benz/300-sl/"},
	}
	for _, tt := range tests {
		got := s.searchURL(searchCriteria(tt.mk, tt.model))
		if got != tt.want {
			t.Errorf("searchURL(%q, %q) = %q, want %q", tt.mk, tt.model, got, tt.want)
		}
	}
}
