package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
)

const (
	carsComKey      = "carscom"
	carsComBaseURL  = "https://www.cars.com"
	carsComPageSize = 20
)

// CarsCom scrapes used-car inventory from the Cars.com results pages,
// which are server-rendered and paginate through a page query parameter.
type CarsCom struct {
	fetcher *Fetcher
	pacer   *pacing.Pacer
	budget  *ratelimit.PageBudgetTracker
	log     *logging.Logger
}

// NewCarsCom creates the Cars.com adapter.
func NewCarsCom(deps Deps) *CarsCom {
	return &CarsCom{
		fetcher: deps.Fetcher,
		pacer:   deps.Pacer,
		budget:  deps.Budget,
		log:     deps.Log.WithPlatform(carsComKey),
	}
}

func (s *CarsCom) pageURL(c models.SearchCriteria, page int) string {
	makeSlug := Slug(c.Make, "_")
	target := fmt.Sprintf(
		"%s/shopping/results/?stock_type=used&maximum_distance=all&sort=best_match_desc&page_size=%d&page=%d&makes[]=%s",
		carsComBaseURL, carsComPageSize, page, makeSlug)
	if c.Model != "" {
		target += fmt.Sprintf("&models[]=%s-%s", makeSlug, Slug(c.Model, "_"))
	}
	if c.YearFrom > 0 {
		target += fmt.Sprintf("&year_min=%d", c.YearFrom)
	}
	if c.YearTo > 0 {
		target += fmt.Sprintf("&year_max=%d", c.YearTo)
	}
	if c.Keyword != "" {
		target += "&keyword=" + url.QueryEscape(c.Keyword)
	}
	return target
}

// Search fetches result pages until one fails, comes back empty or the
// page cap is reached. A mid-pagination failure keeps the pages already
// collected.
func (s *CarsCom) Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.UsedCarListing, error) {
	var all []models.UsedCarListing
	for page := 1; page <= opts.MaxPages; page++ {
		if page > 1 {
			if err := s.pacer.Wait(ctx); err != nil {
				break
			}
		}
		if !allowPage(ctx, s.budget, carsComKey) {
			s.log.Warn("Daily page budget exhausted, stopping pagination")
			break
		}

		target := s.pageURL(criteria, page)
		s.log.WithFields(map[string]interface{}{"url": target, "page": page}).Info("Fetching results page")

		body, err := s.fetcher.GetWithRetry(ctx, target)
		if err != nil {
			s.log.WithError(err).Warn("Page fetch failed, keeping pages collected so far")
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			s.log.WithError(err).Warn("Failed to parse results page")
			break
		}

		if marker, blocked := BotMarker(doc.Find("title").First().Text()); blocked {
			s.log.WithField("marker", marker).Warn("Anti-bot page served, stopping pagination")
			break
		}

		cards := selectCards(doc,
			".vehicle-card", "[class*='vehicle-card']", ".listing-row", "[data-qa='results-card']")
		if len(cards) == 0 {
			break
		}

		for _, card := range cards {
			if l := s.parseCard(card); l != nil {
				all = append(all, *l)
			}
		}
		opts.report(page, opts.MaxPages, len(all))
	}

	s.log.WithField("count", len(all)).Info("Inventory scraped")
	return all, nil
}

func (s *CarsCom) parseCard(card *goquery.Selection) *models.UsedCarListing {
	title, href := cardTitle(card,
		"h2 a", ".vehicle-card-link", "a.vehicle-card-visited-tracking-link",
		"a[href*='/vehicledetail/']")
	if title == "" {
		return nil
	}

	year, mk, model, trim := ParseTitleTrim(title)

	priceText := firstText(card, ".primary-price", "[class*='primary-price']", ".listing-row__price")
	price := ParsePriceUSD(priceText)

	var mileage *int
	if txt := firstText(card, "[class*='mileage']", ".mileage"); txt != "" {
		mileage = ParseMileage(txt)
	}

	dealer := firstText(card, "[class*='dealer-name']", ".dealer-name")
	location := firstText(card, "[class*='miles-from']", ".miles-from")

	return &models.UsedCarListing{
		Year:        intPtr(year),
		Make:        strPtr(mk),
		Model:       strPtr(model),
		Trim:        strPtr(trim),
		ListPrice:   price,
		Mileage:     mileage,
		DealerName:  strPtr(dealer),
		Location:    strPtr(location),
		Description: strPtr(title),
		URL:         strPtr(absoluteURL(carsComBaseURL, href)),
		ImageURL:    strPtr(imageURL(card)),
		IsActive:    true,
		Currency:    "USD",
	}
}
