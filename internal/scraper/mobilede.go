package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
)

const (
	mobileDeKey       = "mobilede"
	mobileDeBaseURL   = "https://www.mobile.de"
	mobileDeSearchURL = "https://suchen.mobile.de"
)

var (
	mobileDeConsentSelectors = []string{"#mde-consent-accept-btn", "[data-testid='gdpr-consent-accept-btn']"}
	mobileDeConsentTexts     = []string{"alle akzeptieren", "akzeptieren", "accept"}
)

// MobileDe scrapes used-car inventory from Mobile.de. The search pages
// render client-side behind a GDPR consent wall, so every page load runs
// in a German-locale browser session that dismisses the banner first.
type MobileDe struct {
	browser *Browser
	pacer   *pacing.Pacer
	budget  *ratelimit.PageBudgetTracker
	log     *logging.Logger
}

// NewMobileDe creates the Mobile.de adapter.
func NewMobileDe(deps Deps) *MobileDe {
	return &MobileDe{
		browser: deps.Browser,
		pacer:   deps.Pacer,
		budget:  deps.Budget,
		log:     deps.Log.WithPlatform(mobileDeKey),
	}
}

func (s *MobileDe) pageURL(c models.SearchCriteria, page int) string {
	query := c.Make
	if c.Model != "" {
		query += " " + c.Model
	}
	if c.Keyword != "" {
		query += " " + c.Keyword
	}

	target := fmt.Sprintf(
		"%s/fahrzeuge/search.html?isSearchRequest=true&damageUnrepaired=NO_DAMAGE_UNREPAIRED&scopeId=C&sfmr=false&pageNumber=%d",
		mobileDeSearchURL, page)
	if query != "" {
		target += "&q=" + url.QueryEscape(strings.TrimSpace(query))
	}
	if c.YearFrom > 0 {
		target += fmt.Sprintf("&minFirstRegistrationDate=%d", c.YearFrom)
	}
	if c.YearTo > 0 {
		target += fmt.Sprintf("&maxFirstRegistrationDate=%d", c.YearTo)
	}
	return target
}

// Search walks numbered result pages until one comes back without cards.
// Year and keyword narrowing are part of the search URL.
func (s *MobileDe) Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.UsedCarListing, error) {
	sess, err := s.browser.NewSession(ctx, SessionOptions{Locale: "de-DE"})
	if err != nil {
		s.log.WithError(err).Error("Browser session failed to start")
		return nil, err
	}
	defer sess.Close()

	var all []models.UsedCarListing
	for page := 1; page <= opts.MaxPages; page++ {
		if page > 1 {
			if err := s.pacer.Wait(ctx); err != nil {
				break
			}
		}
		if !allowPage(ctx, s.budget, mobileDeKey) {
			s.log.Warn("Daily page budget exhausted, stopping pagination")
			break
		}

		target := s.pageURL(criteria, page)
		s.log.WithFields(map[string]interface{}{"url": target, "page": page}).Info("Rendering results page")

		if err := sess.Navigate(target, 4*time.Second); err != nil {
			s.log.WithError(err).Warn("Navigation did not finish, reading partial page")
		}

		if sess.ClickAny(mobileDeConsentSelectors, mobileDeConsentTexts) {
			sess.Settle(2 * time.Second)
		}

		html, err := sess.HTML()
		if err != nil {
			s.log.WithError(err).Warn("Failed to read rendered page")
			break
		}

		pageItems := s.parsePage(html)
		if len(pageItems) == 0 {
			s.log.WithField("page", page).Info("No results on page")
			break
		}

		all = append(all, pageItems...)
		opts.report(page, opts.MaxPages, len(all))
	}

	s.log.WithField("count", len(all)).Info("Inventory scraped")
	return all, nil
}

func (s *MobileDe) parsePage(html string) []models.UsedCarListing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	strategies := []UsedCarStrategy{
		{Name: "selectors", Extract: func() []models.UsedCarListing {
			return s.parseCards(selectCards(doc,
				"[data-testid='result-listing']", ".cBox-body--resultitem",
				".result-item", ".search-result-entry",
				"[class*='result-listing']", "[class*='ResultItem']"))
		}},
		{Name: "link-crawl", Extract: func() []models.UsedCarListing {
			return s.parseCards(CrawlLinks(doc, "/fahrzeuge/details"))
		}},
	}
	return runUsedCarStrategies(s.log, strategies)
}

func (s *MobileDe) parseCards(cards []*goquery.Selection) []models.UsedCarListing {
	var out []models.UsedCarListing
	for _, card := range cards {
		if l := s.parseCard(card); l != nil {
			out = append(out, *l)
		}
	}
	return out
}

func (s *MobileDe) parseCard(card *goquery.Selection) *models.UsedCarListing {
	title, href := cardTitle(card,
		"a.link--muted", "[data-testid='result-title']", "h2 a",
		".headline a", "a[href*='/fahrzeuge/details']")
	if title == "" {
		return nil
	}

	year, mk, model, trim := ParseTitleTrim(title)

	var price *float64
	if txt := firstText(card,
		"[data-testid='price-label']", ".price-block", ".seller-currency", "[class*='price']"); txt != "" {
		price = ParsePriceEUR(txt)
	}

	var mileage *int
	if txt := firstText(card, "[data-testid='mileage-label']", ".rbt-regMil498"); txt != "" {
		mileage = ParseMileageKM(txt)
	}
	if mileage == nil {
		mileage = ParseMileageKM(card.Text())
	}

	// The title usually opens with the year; German cards fall back to the
	// first-registration field.
	yearPtr := intPtr(year)
	if yearPtr == nil {
		if txt := firstText(card, "[data-testid='firstRegistration-label']", ".rbt-regDate"); txt != "" {
			yearPtr = ParseYear(txt)
		}
	}
	if yearPtr == nil {
		yearPtr = ParseRegistrationYear(card.Text())
	}

	var dealer string
	if txt := firstText(card, "[data-testid='seller-info']", ".seller-info"); txt != "" {
		dealer = truncate(txt, 100)
	}
	location := firstText(card, "[data-testid='seller-address']", ".seller-address")

	return &models.UsedCarListing{
		Year:        yearPtr,
		Make:        strPtr(mk),
		Model:       strPtr(model),
		Trim:        strPtr(trim),
		ListPrice:   price,
		Mileage:     mileage,
		DealerName:  strPtr(dealer),
		Location:    strPtr(location),
		Description: strPtr(title),
		URL:         strPtr(absoluteURL(mobileDeBaseURL, href)),
		ImageURL:    strPtr(imageURL(card)),
		IsActive:    true,
		Currency:    "EUR",
	}
}
