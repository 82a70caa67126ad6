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
	autotraderKey      = "autotrader"
	autotraderBaseURL  = "https://www.autotrader.com"
	autotraderPageSize = 25
)

var autotraderAPIPatterns = []string{"/rest/searchresults", "/api/", "/rest/lsc/", "searchResults"}

const autotraderListingSelector = "[data-cmp='inventoryListing'], .inventory-listing, .vehicle-card, [data-testid='listing']"

// Autotrader scrapes active used-car inventory from AutoTrader. Search
// results load through a REST API the page calls after render, so the
// intercepted payloads carry richer fields than the cards themselves.
type Autotrader struct {
	browser *Browser
	pacer   *pacing.Pacer
	budget  *ratelimit.PageBudgetTracker
	log     *logging.Logger
}

// NewAutotrader creates the AutoTrader adapter.
func NewAutotrader(deps Deps) *Autotrader {
	return &Autotrader{
		browser: deps.Browser,
		pacer:   deps.Pacer,
		budget:  deps.Budget,
		log:     deps.Log.WithPlatform(autotraderKey),
	}
}

func (s *Autotrader) pageURL(c models.SearchCriteria, page int) string {
	path := "/cars-for-sale/all-cars/" + Slug(c.Make, "-")
	if c.Model != "" {
		path += "/" + Slug(c.Model, "-")
	}
	target := fmt.Sprintf("%s%s?searchRadius=0&isNewSearch=true&sortBy=relevance&numRecords=%d&firstRecord=%d",
		autotraderBaseURL, path, autotraderPageSize, (page-1)*autotraderPageSize)
	if c.YearFrom > 0 {
		target += fmt.Sprintf("&startYear=%d", c.YearFrom)
	}
	if c.YearTo > 0 {
		target += fmt.Sprintf("&endYear=%d", c.YearTo)
	}
	if c.Keyword != "" {
		target += "&keywordPhrases=" + url.QueryEscape(c.Keyword)
	}
	return target
}

// Search walks result pages through firstRecord offsets until a page comes
// back empty or the page cap is reached. Year and keyword narrowing happen
// in the URL, so no post-filtering is needed.
func (s *Autotrader) Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.UsedCarListing, error) {
	sess, err := s.browser.NewSession(ctx, SessionOptions{CapturePatterns: autotraderAPIPatterns})
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
		if !allowPage(ctx, s.budget, autotraderKey) {
			s.log.Warn("Daily page budget exhausted, stopping pagination")
			break
		}

		target := s.pageURL(criteria, page)
		s.log.WithFields(map[string]interface{}{"url": target, "page": page}).Info("Rendering results page")

		if err := sess.Navigate(target, 8*time.Second); err != nil {
			s.log.WithError(err).Warn("Navigation did not finish, reading partial page")
		}

		if title, err := sess.Title(); err == nil {
			if marker, blocked := BotMarker(title); blocked {
				s.log.WithField("marker", marker).Warn("Anti-bot page served, stopping pagination")
				break
			}
		}

		sess.WaitVisible(autotraderListingSelector, 10*time.Second)

		captured := sess.DrainCaptured()
		html, _ := sess.HTML()

		strategies := []UsedCarStrategy{
			{Name: "intercepted-api", Extract: func() []models.UsedCarListing {
				return s.parseCaptured(captured)
			}},
			{Name: "embedded-json", Extract: func() []models.UsedCarListing {
				return s.parseAPIItems(EmbeddedList(html, "listings", "results", "vehicles"))
			}},
			{Name: "selectors", Extract: func() []models.UsedCarListing {
				return s.parseHTML(html)
			}},
		}
		pageItems := runUsedCarStrategies(s.log, strategies)
		if len(pageItems) == 0 {
			break
		}

		all = append(all, pageItems...)
		opts.report(page, opts.MaxPages, len(all))
	}

	s.log.WithField("count", len(all)).Info("Inventory scraped")
	return all, nil
}

func (s *Autotrader) parseCaptured(bodies [][]byte) []models.UsedCarListing {
	var out []models.UsedCarListing
	for _, body := range bodies {
		items := DecodeCapturedItems(body, "listings", "results", "vehicles", "items")
		out = append(out, s.parseAPIItems(items)...)
	}
	return out
}

func (s *Autotrader) parseAPIItems(items []map[string]interface{}) []models.UsedCarListing {
	var out []models.UsedCarListing
	for _, item := range items {
		if l := s.parseAPIItem(item); l != nil {
			out = append(out, *l)
		}
	}
	return out
}

func (s *Autotrader) parseAPIItem(item map[string]interface{}) *models.UsedCarListing {
	title := strField(item, "title")
	if title == "" {
		return nil
	}

	year, mk, model, trim := ParseTitleTrim(title)

	var price *float64
	if pricing := nestField(item, "pricingDetail"); pricing != nil {
		if f, ok := numField(pricing, "primary"); ok {
			price = &f
		}
	}
	if price == nil {
		if f, ok := numField(item, "price", "listPrice"); ok {
			price = &f
		}
	}

	var mileage *int
	if spec := nestField(item, "specifications", "mileage"); spec != nil {
		if n, ok := intField(spec, "value"); ok && n > 0 {
			mileage = &n
		}
	}

	var daysListed *int
	if n, ok := intField(item, "daysOnMarket"); ok && n > 0 {
		daysListed = &n
	}

	var dealer, location string
	if owner := nestField(item, "owner"); owner != nil {
		dealer = strField(owner, "name")
		if loc := nestField(owner, "location"); loc != nil {
			location = strField(loc, "city")
		}
	}

	href := strField(item, "href", "url")

	return &models.UsedCarListing{
		Year:         intPtr(year),
		Make:         strPtr(mk),
		Model:        strPtr(model),
		Trim:         strPtr(trim),
		ListPrice:    price,
		Mileage:      mileage,
		DaysOnMarket: daysListed,
		DealerName:   strPtr(dealer),
		Location:     strPtr(location),
		Description:  strPtr(title),
		URL:          strPtr(absoluteURL(autotraderBaseURL, href)),
		ImageURL:     strPtr(strField(item, "image", "primaryPhotoUrl")),
		IsActive:     true,
		Currency:     "USD",
	}
}

func (s *Autotrader) parseHTML(html string) []models.UsedCarListing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	cards := selectCards(doc,
		"[data-cmp='inventoryListing']", ".inventory-listing", ".vehicle-card",
		"[data-testid='listing']", "[class*='listing-card']")

	var out []models.UsedCarListing
	for _, card := range cards {
		if l := s.parseCard(card); l != nil {
			out = append(out, *l)
		}
	}
	return out
}

func (s *Autotrader) parseCard(card *goquery.Selection) *models.UsedCarListing {
	title, href := cardTitle(card,
		"h2", "h3", "[data-cmp='inventoryListingTitle']", "a[href*='/cars-for-sale/']")
	if title == "" {
		return nil
	}
	if href == "" {
		href, _ = card.Find("a[href*='/cars-for-sale/']").First().Attr("href")
	}

	year, mk, model, trim := ParseTitleTrim(title)

	priceText := firstText(card,
		".first-price", "[data-cmp='firstPrice']", ".primary-price", "[class*='price']")
	price := ParsePriceUSD(priceText)

	var mileage *int
	card.Find("[class*='mileage'], [class*='specifications'], li").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		txt := strings.ToLower(el.Text())
		if !strings.Contains(txt, "mi") {
			return true
		}
		if m := ParseMileage(txt); m != nil {
			mileage = m
			return false
		}
		return true
	})

	dealer := firstText(card, "[class*='dealer']", ".dealer-name")

	return &models.UsedCarListing{
		Year:        intPtr(year),
		Make:        strPtr(mk),
		Model:       strPtr(model),
		Trim:        strPtr(trim),
		ListPrice:   price,
		Mileage:     mileage,
		DealerName:  strPtr(dealer),
		Description: strPtr(title),
		URL:         strPtr(absoluteURL(autotraderBaseURL, href)),
		ImageURL:    strPtr(imageURL(card)),
		IsActive:    true,
		Currency:    "USD",
	}
}
