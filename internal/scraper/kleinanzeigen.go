package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
)

const (
	kleinanzeigenKey     = "kleinanzeigen"
	kleinanzeigenBaseURL = "https://www.kleinanzeigen.de"
)

var (
	kleinanzeigenConsentSelectors = []string{"#gdpr-banner-accept"}
	kleinanzeigenConsentTexts     = []string{"einverstanden", "accept"}
)

// Kleinanzeigen scrapes private used-car ads from eBay Kleinanzeigen. Ads
// are free-form, so year and mileage often have to be read out of the card
// text rather than structured fields, and the search URL carries no year
// range at all.
type Kleinanzeigen struct {
	browser *Browser
	pacer   *pacing.Pacer
	budget  *ratelimit.PageBudgetTracker
	log     *logging.Logger
}

// NewKleinanzeigen creates the Kleinanzeigen adapter.
func NewKleinanzeigen(deps Deps) *Kleinanzeigen {
	return &Kleinanzeigen{
		browser: deps.Browser,
		pacer:   deps.Pacer,
		budget:  deps.Budget,
		log:     deps.Log.WithPlatform(kleinanzeigenKey),
	}
}

func (s *Kleinanzeigen) pageURL(c models.SearchCriteria, page int) string {
	var parts []string
	if c.Make != "" {
		parts = append(parts, strings.ToLower(c.Make))
	}
	if c.Model != "" {
		parts = append(parts, strings.ToLower(c.Model))
	}
	if c.Keyword != "" {
		parts = append(parts, c.Keyword)
	}
	query := "auto"
	if len(parts) > 0 {
		query = strings.Join(parts, "-")
	}

	// k0c216 is the Autos category.
	if page == 1 {
		return fmt.Sprintf("%s/s-autos/%s/k0c216", kleinanzeigenBaseURL, query)
	}
	return fmt.Sprintf("%s/s-autos/seite:%d/%s/k0c216", kleinanzeigenBaseURL, page, query)
}

// Search walks numbered result pages until one comes back without ads.
// The year range is applied afterwards since the URL cannot express it;
// ads whose year never surfaced stay in.
func (s *Kleinanzeigen) Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.UsedCarListing, error) {
	sess, err := s.browser.NewSession(ctx, SessionOptions{Locale: "en-US"})
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
		if !allowPage(ctx, s.budget, kleinanzeigenKey) {
			s.log.Warn("Daily page budget exhausted, stopping pagination")
			break
		}

		target := s.pageURL(criteria, page)
		s.log.WithFields(map[string]interface{}{"url": target, "page": page}).Info("Rendering results page")

		if err := sess.Navigate(target, 3*time.Second); err != nil {
			s.log.WithError(err).Warn("Navigation did not finish, reading partial page")
		}

		if sess.ClickAny(kleinanzeigenConsentSelectors, kleinanzeigenConsentTexts) {
			sess.Settle(1 * time.Second)
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

	var out []models.UsedCarListing
	for _, l := range all {
		if !MatchYear(l.Year, criteria, KeepUnknownYear) {
			continue
		}
		out = append(out, l)
	}

	s.log.WithField("count", len(out)).Info("Ads scraped")
	return out, nil
}

func (s *Kleinanzeigen) parsePage(html string) []models.UsedCarListing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	strategies := []UsedCarStrategy{
		{Name: "selectors", Extract: func() []models.UsedCarListing {
			return s.parseCards(selectCards(doc,
				"article.aditem", "[data-testid='ad-listitem']", ".ad-listitem", "li.ad-listitem"))
		}},
		{Name: "link-crawl", Extract: func() []models.UsedCarListing {
			return s.parseCards(CrawlLinks(doc, "/s-anzeige/"))
		}},
	}
	return runUsedCarStrategies(s.log, strategies)
}

func (s *Kleinanzeigen) parseCards(cards []*goquery.Selection) []models.UsedCarListing {
	var out []models.UsedCarListing
	for _, card := range cards {
		if l := s.parseCard(card); l != nil {
			out = append(out, *l)
		}
	}
	return out
}

func (s *Kleinanzeigen) parseCard(card *goquery.Selection) *models.UsedCarListing {
	title, href := cardTitle(card,
		"a.ellipsis", "h2 a", "[data-testid='ad-title'] a",
		".aditem-main--middle--title a", "a[href*='/s-anzeige/']")
	if title == "" {
		return nil
	}

	year, mk, model, trim := ParseTitleTrim(title)

	var price *float64
	if txt := firstText(card,
		"[class*='price']", ".aditem-main--middle--price-shipping--price", "p.aditem-main--middle--price"); txt != "" {
		price = ParsePriceEUR(txt)
	}

	cardText := strings.ToLower(card.Text())
	mileage := ParseMileageKM(cardText)

	yearPtr := intPtr(year)
	if yearPtr == nil {
		yearPtr = ParseYear(cardText)
	}

	location := firstText(card, "[class*='location']", ".aditem-main--top--left")

	return &models.UsedCarListing{
		Year:        yearPtr,
		Make:        strPtr(mk),
		Model:       strPtr(model),
		Trim:        strPtr(trim),
		ListPrice:   price,
		Mileage:     mileage,
		Location:    strPtr(location),
		Description: strPtr(title),
		URL:         strPtr(absoluteURL(kleinanzeigenBaseURL, href)),
		ImageURL:    strPtr(imageURL(card)),
		IsActive:    true,
		Currency:    "EUR",
	}
}
