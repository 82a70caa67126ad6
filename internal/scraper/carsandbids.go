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
	carsAndBidsKey     = "carsandbids"
	carsAndBidsBaseURL = "https://carsandbids.com"
)

// Result pages are assembled client-side; these request URL fragments
// identify the search API calls worth capturing.
var carsAndBidsAPIPatterns = []string{"/api/", "/search", "/auctions", "graphql"}

var (
	carsAndBidsLoadMoreSelectors = []string{"[class*='load-more']", "button[class*='more']"}
	carsAndBidsLoadMoreTexts     = []string{"load more", "show more", "next"}
)

// CarsAndBids scrapes past-auction results from Cars & Bids through a
// headless browser. The intercepted search API is the primary source;
// embedded page JSON and rendered cards back it up.
type CarsAndBids struct {
	browser *Browser
	pacer   *pacing.Pacer
	budget  *ratelimit.PageBudgetTracker
	log     *logging.Logger
}

// NewCarsAndBids creates the Cars & Bids adapter.
func NewCarsAndBids(deps Deps) *CarsAndBids {
	return &CarsAndBids{
		browser: deps.Browser,
		pacer:   deps.Pacer,
		budget:  deps.Budget,
		log:     deps.Log.WithPlatform(carsAndBidsKey),
	}
}

func (s *CarsAndBids) searchURL(c models.SearchCriteria) string {
	query := c.Make
	if c.Model != "" {
		query += " " + c.Model
	}
	target := fmt.Sprintf("%s/past-auctions/?q=%s", carsAndBidsBaseURL, url.QueryEscape(query))
	if c.YearFrom > 0 {
		target += fmt.Sprintf("&yearFrom=%d", c.YearFrom)
	}
	if c.YearTo > 0 {
		target += fmt.Sprintf("&yearTo=%d", c.YearTo)
	}
	return target
}

// Search renders the past-auctions page and keeps clicking the load-more
// control until it stops producing new items or the page cap is reached.
func (s *CarsAndBids) Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.AuctionListing, error) {
	sess, err := s.browser.NewSession(ctx, SessionOptions{CapturePatterns: carsAndBidsAPIPatterns})
	if err != nil {
		s.log.WithError(err).Error("Browser session failed to start")
		return nil, err
	}
	defer sess.Close()

	if !allowPage(ctx, s.budget, carsAndBidsKey) {
		s.log.Warn("Daily page budget exhausted, skipping search")
		return nil, nil
	}

	target := s.searchURL(criteria)
	s.log.WithField("url", target).Info("Rendering past-auctions page")

	if err := sess.Navigate(target, 5*time.Second); err != nil {
		s.log.WithError(err).Warn("Navigation did not finish, reading partial page")
	}

	if title, err := sess.Title(); err == nil {
		if marker, blocked := BotMarker(title); blocked {
			s.log.WithField("marker", marker).Warn("Anti-bot page served instead of results")
			return nil, nil
		}
	}

	captured := sess.DrainCaptured()
	html, _ := sess.HTML()

	strategies := []AuctionStrategy{
		{Name: "intercepted-api", Extract: func() []models.AuctionListing {
			return s.parseCaptured(captured)
		}},
		{Name: "embedded-json", Extract: func() []models.AuctionListing {
			return s.parseAPIItems(EmbeddedList(html, "auctions", "results", "listings"))
		}},
		{Name: "selectors", Extract: func() []models.AuctionListing {
			return s.parseHTML(html, false)
		}},
		{Name: "link-crawl", Extract: func() []models.AuctionListing {
			return s.parseHTML(html, true)
		}},
	}
	all := runAuctionStrategies(s.log, strategies)
	opts.report(1, opts.MaxPages, len(all))

	for page := 2; page <= opts.MaxPages && len(all) > 0; page++ {
		if err := s.pacer.Wait(ctx); err != nil {
			break
		}
		if !allowPage(ctx, s.budget, carsAndBidsKey) {
			s.log.Warn("Daily page budget exhausted, stopping pagination")
			break
		}
		if !sess.ClickAny(carsAndBidsLoadMoreSelectors, carsAndBidsLoadMoreTexts) {
			break
		}
		sess.Settle(3 * time.Second)

		fresh := s.parseCaptured(sess.DrainCaptured())
		if len(fresh) == 0 {
			break
		}
		all = append(all, fresh...)
		opts.report(page, opts.MaxPages, len(all))
	}

	cutoff := TimeCutoff(criteria.TimeFilter, time.Now())
	var out []models.AuctionListing
	for _, l := range all {
		if !MatchYear(l.Year, criteria, DropUnknownYear) {
			continue
		}
		if !MatchKeyword(criteria.Keyword, l.Description, l.URL) {
			continue
		}
		if !WithinWindow(l.AuctionEndDate, cutoff) {
			continue
		}
		out = append(out, l)
	}

	s.log.WithField("count", len(out)).Info("Past auctions scraped")
	return out, nil
}

func (s *CarsAndBids) parseCaptured(bodies [][]byte) []models.AuctionListing {
	var out []models.AuctionListing
	for _, body := range bodies {
		items := DecodeCapturedItems(body, "results", "auctions", "data", "items", "content")
		out = append(out, s.parseAPIItems(items)...)
	}
	return out
}

func (s *CarsAndBids) parseAPIItems(items []map[string]interface{}) []models.AuctionListing {
	var out []models.AuctionListing
	for _, item := range items {
		if l := s.parseAPIItem(item); l != nil {
			out = append(out, *l)
		}
	}
	return out
}

func (s *CarsAndBids) parseAPIItem(item map[string]interface{}) *models.AuctionListing {
	title := strField(item, "title")
	if title == "" {
		return nil
	}

	year, mk, model := ParseTitle(title)
	if year == 0 {
		if n, ok := intField(item, "year"); ok {
			year = n
		}
	}
	if mk == "" {
		mk = strField(item, "make")
	}
	if model == "" {
		model = strField(item, "model")
	}

	status := strings.ToLower(strField(item, "status"))
	sold := status == "sold" || status == "completed"

	var price *float64
	switch v := firstPresent(item, "sold_price", "price", "currentBid").(type) {
	case float64:
		price = &v
	case string:
		lower := strings.ToLower(v)
		if strings.Contains(lower, "not sold") || strings.Contains(lower, "bid to") {
			sold = false
		}
		price = ParsePriceUSD(v)
	}

	var bids *int
	if n, ok := intField(item, "bid_count", "bids", "bidCount"); ok && n > 0 {
		bids = &n
	}

	l := &models.AuctionListing{
		Year:           intPtr(year),
		Make:           strPtr(mk),
		Model:          strPtr(model),
		BidCount:       bids,
		TimesListed:    1,
		Description:    strPtr(title),
		URL:            strPtr(absoluteURL(carsAndBidsBaseURL, strField(item, "url", "link"))),
		ImageURL:       strPtr(strField(item, "image", "photo_url", "thumbnail", "primaryPhotoUrl")),
		AuctionEndDate: ParseEndDate(strField(item, "end_date", "endDate")),
		IsSold:         sold,
	}
	l.SetBid(price)
	return l
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func (s *CarsAndBids) parseHTML(html string, crawl bool) []models.AuctionListing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var cards []*goquery.Selection
	if crawl {
		cards = CrawlLinks(doc, "/auctions/")
	} else {
		cards = selectCards(doc,
			".auction-card", ".past-auction", ".search-result",
			"[class*='auction-card']", "[class*='AuctionCard']")
	}

	var out []models.AuctionListing
	for _, card := range cards {
		if l := s.parseCard(card); l != nil {
			out = append(out, *l)
		}
	}
	return out
}

func (s *CarsAndBids) parseCard(card *goquery.Selection) *models.AuctionListing {
	title, href := cardTitle(card,
		"a h3", ".auction-title a", ".auction-title", "a.hero-link",
		"h2 a", "h3 a", "a[href*='/auctions/']")
	if title == "" {
		return nil
	}

	year, mk, model := ParseTitle(title)

	priceText := firstText(card,
		".auction-result", ".sold-price", ".current-bid",
		"[class*='price']", "[class*='bid']")
	price := ParsePriceUSD(priceText)

	var bids *int
	if txt := firstText(card, ".bid-number", ".bids", "[class*='bid-count']"); txt != "" {
		bids = ParseCount(txt)
	}

	sold := SoldFromText(card.Text()) || SoldFromText(priceText)

	l := &models.AuctionListing{
		Year:        intPtr(year),
		Make:        strPtr(mk),
		Model:       strPtr(model),
		BidCount:    bids,
		TimesListed: 1,
		Description: strPtr(title),
		URL:         strPtr(absoluteURL(carsAndBidsBaseURL, href)),
		ImageURL:    strPtr(imageURL(card)),
		IsSold:      sold,
	}
	l.SetBid(price)
	return l
}
