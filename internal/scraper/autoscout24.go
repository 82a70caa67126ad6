package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
)

const (
	autoScout24Key     = "autoscout24"
	autoScout24BaseURL = "https://www.autoscout24.de"
)

// AutoScout24 scrapes used-car inventory from AutoScout24 Germany. The
// result pages ship a complete __NEXT_DATA__ payload, so a plain fetch
// plus the embedded JSON covers everything without a browser.
type AutoScout24 struct {
	fetcher *Fetcher
	pacer   *pacing.Pacer
	budget  *ratelimit.PageBudgetTracker
	log     *logging.Logger
}

// NewAutoScout24 creates the AutoScout24 adapter.
func NewAutoScout24(deps Deps) *AutoScout24 {
	return &AutoScout24{
		fetcher: deps.Fetcher,
		pacer:   deps.Pacer,
		budget:  deps.Budget,
		log:     deps.Log.WithPlatform(autoScout24Key),
	}
}

func (s *AutoScout24) pageURL(c models.SearchCriteria, page int) string {
	path := "/lst/" + Slug(c.Make, "-")
	if c.Model != "" {
		path += "/" + Slug(c.Model, "-")
	}
	// cy=D and atype=C restrict to cars offered in Germany.
	target := fmt.Sprintf("%s%s?sort=standard&desc=0&ustate=N,U&size=20&page=%d&cy=D&atype=C",
		autoScout24BaseURL, path, page)
	if c.YearFrom > 0 {
		target += fmt.Sprintf("&fregfrom=%d", c.YearFrom)
	}
	if c.YearTo > 0 {
		target += fmt.Sprintf("&fregto=%d", c.YearTo)
	}
	if c.Keyword != "" {
		target += "&search_query=" + url.QueryEscape(c.Keyword)
	}
	return target
}

// Search fetches numbered result pages and decodes the embedded listing
// JSON until a page comes back empty or the page cap is reached.
func (s *AutoScout24) Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.UsedCarListing, error) {
	var all []models.UsedCarListing
	for page := 1; page <= opts.MaxPages; page++ {
		if page > 1 {
			if err := s.pacer.Wait(ctx); err != nil {
				break
			}
		}
		if !allowPage(ctx, s.budget, autoScout24Key) {
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

		items := EmbeddedList(string(body), "listings")
		if len(items) == 0 {
			s.log.WithField("page", page).Info("No results on page")
			break
		}

		for _, item := range items {
			if l := s.parseItem(item); l != nil {
				all = append(all, *l)
			}
		}
		opts.report(page, opts.MaxPages, len(all))
	}

	s.log.WithField("count", len(all)).Info("Inventory scraped")
	return all, nil
}

func (s *AutoScout24) parseItem(item map[string]interface{}) *models.UsedCarListing {
	vehicle := nestField(item, "vehicle")
	if vehicle == nil {
		return nil
	}
	tracking := nestField(item, "tracking")

	mk := strField(vehicle, "make")
	model := strField(vehicle, "model")
	trim := strField(vehicle, "modelVersionInput")
	if mk == "" && model == "" {
		return nil
	}

	// Tracking carries prices and mileage as numeric strings; the
	// formatted display price is the fallback.
	var price *float64
	if tracking != nil {
		if f, ok := numField(tracking, "price"); ok {
			price = &f
		}
	}
	if price == nil {
		if p := nestField(item, "price"); p != nil {
			price = ParsePriceEUR(strField(p, "priceFormatted"))
		}
	}

	var mileage *int
	if tracking != nil {
		if n, ok := intField(tracking, "mileage"); ok && n > 0 {
			mileage = &n
		}
	}

	// firstRegistration comes as "MM-YYYY".
	var year *int
	if tracking != nil {
		year = ParseYear(strField(tracking, "firstRegistration"))
	}

	var location string
	if loc := nestField(item, "location"); loc != nil {
		parts := []string{}
		if zip := strField(loc, "zip"); zip != "" {
			parts = append(parts, zip)
		}
		if city := strField(loc, "city"); city != "" {
			parts = append(parts, city)
		}
		location = strings.Join(parts, " ")
	}

	var dealer string
	if seller := nestField(item, "seller"); seller != nil {
		dealer = strField(seller, "companyName")
	}

	var img string
	if images, ok := item["images"].([]interface{}); ok && len(images) > 0 {
		img, _ = images[0].(string)
	}

	title := strings.TrimSpace(mk + " " + model)
	if trim != "" {
		title += " " + trim
	}

	return &models.UsedCarListing{
		Year:        year,
		Make:        strPtr(mk),
		Model:       strPtr(model),
		Trim:        strPtr(trim),
		ListPrice:   price,
		Mileage:     mileage,
		DealerName:  strPtr(dealer),
		Location:    strPtr(location),
		Description: strPtr(title),
		URL:         strPtr(absoluteURL(autoScout24BaseURL, strField(item, "url"))),
		ImageURL:    strPtr(img),
		IsActive:    true,
		Currency:    "EUR",
	}
}
