package scraper

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/ratelimit"
)

const (
	batKey     = "bat"
	batBaseURL = "https://bringatrailer.com"
)

// BringATrailer scrapes auction results from Bring a Trailer model pages.
// The pages are server-rendered, so a plain fetch is enough; results and
// live auctions share one page and the result label tells them apart.
type BringATrailer struct {
	fetcher *Fetcher
	budget  *ratelimit.PageBudgetTracker
	log     *logging.Logger
}

// NewBringATrailer creates the Bring a Trailer adapter.
func NewBringATrailer(deps Deps) *BringATrailer {
	return &BringATrailer{
		fetcher: deps.Fetcher,
		budget:  deps.Budget,
		log:     deps.Log.WithPlatform(batKey),
	}
}

func (s *BringATrailer) searchURL(c models.SearchCriteria) string {
	u := batBaseURL + "/" + Slug(c.Make, "-") + "/"
	if c.Model != "" {
		u += Slug(c.Model, "-") + "/"
	}
	return u
}

// Search fetches the model page and extracts every auction card on it.
// Model pages are not paginated; recent results all fit on one page.
func (s *BringATrailer) Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.AuctionListing, error) {
	if !allowPage(ctx, s.budget, batKey) {
		s.log.Warn("Daily page budget exhausted, skipping search")
		return nil, nil
	}

	target := s.searchURL(criteria)
	s.log.WithField("url", target).Info("Fetching model page")

	body, err := s.fetcher.GetWithRetry(ctx, target)
	if err != nil {
		s.log.WithError(err).Error("Model page fetch failed")
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		s.log.WithError(err).Error("Failed to parse model page")
		return nil, nil
	}

	if marker, blocked := BotMarker(doc.Find("title").First().Text()); blocked {
		s.log.WithField("marker", marker).Warn("Anti-bot page served instead of results")
		return nil, nil
	}

	strategies := []AuctionStrategy{
		{Name: "selectors", Extract: func() []models.AuctionListing {
			return s.parseCards(selectCards(doc, ".listing-card.listing-card-separate", "div[data-listing_id]"))
		}},
		{Name: "link-crawl", Extract: func() []models.AuctionListing {
			return s.parseCards(CrawlLinks(doc, "/listing/"))
		}},
	}
	items := runAuctionStrategies(s.log, strategies)

	var out []models.AuctionListing
	for _, l := range items {
		if !MatchYear(l.Year, criteria, KeepUnknownYear) {
			continue
		}
		if !MatchKeyword(criteria.Keyword, l.Description) {
			continue
		}
		out = append(out, l)
	}

	s.log.WithField("count", len(out)).Info("Model page scraped")
	opts.report(1, 1, len(out))
	return out, nil
}

func (s *BringATrailer) parseCards(cards []*goquery.Selection) []models.AuctionListing {
	var out []models.AuctionListing
	for _, card := range cards {
		if l := s.parseCard(card); l != nil {
			out = append(out, *l)
		}
	}
	return out
}

func (s *BringATrailer) parseCard(card *goquery.Selection) *models.AuctionListing {
	title, href := cardTitle(card, "h3 a", ".content-main h3 a", "a.image-overlay")
	if title == "" {
		return nil
	}
	if href == "" {
		href, _ = card.Find("a.image-overlay").First().Attr("href")
	}

	year, mk, model := ParseTitle(title)
	if IsNonCarItem(title, year) {
		return nil
	}

	var price *float64
	if txt := firstText(card, ".bid-formatted.bold", ".bid-formatted"); txt != "" {
		price = ParsePriceUSD(txt)
	}

	result := firstText(card, ".item-results")
	label := strings.ToLower(firstText(card, ".bid-label"))
	sold := SoldFromText(result) || strings.Contains(label, "sold")

	desc := title
	if card.Find(".item-tag-noreserve").Length() > 0 {
		desc += " [No Reserve]"
	}

	l := &models.AuctionListing{
		Year:        intPtr(year),
		Make:        strPtr(mk),
		Model:       strPtr(model),
		TimesListed: 1,
		Description: strPtr(desc),
		URL:         strPtr(absoluteURL(batBaseURL, href)),
		ImageURL:    strPtr(imageURL(card, ".thumbnail img", "img")),
		IsSold:      sold,
	}
	l.SetBid(price)
	return l
}
