package scraper

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
)

// AuctionStrategy is one extraction approach for auction results. An
// adapter declares its strategies in priority order and the first one that
// yields any listings wins; later strategies are never attempted.
type AuctionStrategy struct {
	Name    string
	Extract func() []models.AuctionListing
}

// UsedCarStrategy is the used-car counterpart of AuctionStrategy.
type UsedCarStrategy struct {
	Name    string
	Extract func() []models.UsedCarListing
}

func runAuctionStrategies(log *logging.Logger, strategies []AuctionStrategy) []models.AuctionListing {
	for _, s := range strategies {
		items := s.Extract()
		if len(items) > 0 {
			log.WithFields(map[string]interface{}{
				"strategy": s.Name,
				"count":    len(items),
			}).Debug("Extraction strategy matched")
			return items
		}
	}
	return nil
}

func runUsedCarStrategies(log *logging.Logger, strategies []UsedCarStrategy) []models.UsedCarListing {
	for _, s := range strategies {
		items := s.Extract()
		if len(items) > 0 {
			log.WithFields(map[string]interface{}{
				"strategy": s.Name,
				"count":    len(items),
			}).Debug("Extraction strategy matched")
			return items
		}
	}
	return nil
}

var nextDataRe = regexp.MustCompile(`(?s)<script[^>]*id="__NEXT_DATA__"[^>]*>(.+?)</script>`)

// EmbeddedList pulls the first non-empty object array stored under one of
// the given keys inside a page's __NEXT_DATA__ blob. The walk is bounded
// to six levels, which covers how deep frameworks nest their page props.
func EmbeddedList(html string, keys ...string) []map[string]interface{} {
	m := nextDataRe.FindStringSubmatch(html)
	if m == nil {
		return nil
	}
	var data interface{}
	if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
		return nil
	}
	return findList(data, keys, 0)
}

// findList checks the direct children of each object for a matching key
// before descending, so a shallow match always wins over a deeper one.
func findList(v interface{}, keys []string, depth int) []map[string]interface{} {
	if depth > 6 {
		return nil
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	for _, key := range keys {
		if arr, isArr := obj[key].([]interface{}); isArr && len(arr) > 0 {
			if objs := objectSlice(arr); len(objs) > 0 {
				return objs
			}
		}
	}
	for _, child := range obj {
		if found := findList(child, keys, depth+1); found != nil {
			return found
		}
	}
	return nil
}

// DecodeCapturedItems unwraps an intercepted API payload into listing
// objects. Payloads are either a bare array or an object holding the array
// under one of the given keys.
func DecodeCapturedItems(body []byte, keys ...string) []map[string]interface{} {
	var top interface{}
	if err := json.Unmarshal(body, &top); err != nil {
		return nil
	}
	switch v := top.(type) {
	case []interface{}:
		return objectSlice(v)
	case map[string]interface{}:
		for _, key := range keys {
			if arr, ok := v[key].([]interface{}); ok && len(arr) > 0 {
				if objs := objectSlice(arr); len(objs) > 0 {
					return objs
				}
			}
		}
	}
	return nil
}

func objectSlice(arr []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(map[string]interface{}); ok {
			out = append(out, obj)
		}
	}
	return out
}

// strField returns the first non-empty string stored under any of the keys.
func strField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// numField returns the first numeric value under any of the keys. Numeric
// strings are parsed too since APIs are inconsistent about quoting.
func numField(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func intField(m map[string]interface{}, keys ...string) (int, bool) {
	if f, ok := numField(m, keys...); ok {
		return int(f), true
	}
	return 0, false
}

// nestField walks a path of nested objects and returns the innermost one.
func nestField(m map[string]interface{}, path ...string) map[string]interface{} {
	cur := m
	for _, k := range path {
		next, ok := cur[k].(map[string]interface{})
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// selectCards tries each selector in order and returns the nodes of the
// first one that matches anything.
func selectCards(doc *goquery.Document, selectors ...string) []*goquery.Selection {
	for _, sel := range selectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		out := make([]*goquery.Selection, 0, found.Length())
		found.Each(func(_ int, s *goquery.Selection) {
			out = append(out, s)
		})
		return out
	}
	return nil
}

// CrawlLinks is the last-resort card discovery: it collects the block
// ancestors of every anchor whose href contains pattern, de-duplicated by
// href. Anchors without a classed ancestor stand in for their own card.
func CrawlLinks(doc *goquery.Document, pattern string) []*goquery.Selection {
	var cards []*goquery.Selection
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" || !strings.Contains(href, pattern) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		parent := a.Closest("div[class], li[class], article[class]")
		if parent.Length() > 0 {
			cards = append(cards, parent)
		} else {
			cards = append(cards, a)
		}
	})
	return cards
}

// firstText returns the trimmed text of the first selector that matches a
// non-empty element.
func firstText(card *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if t := strings.TrimSpace(el.Text()); t != "" {
			return t
		}
	}
	return ""
}

// cardTitle walks the title selector chain and returns the first non-empty
// title together with its link target. The href comes from the matched
// element itself or its nearest enclosing anchor.
func cardTitle(card *goquery.Selection, selectors ...string) (title, href string) {
	for _, sel := range selectors {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		title = strings.TrimSpace(el.Text())
		if title == "" {
			continue
		}
		if h, ok := el.Attr("href"); ok {
			return title, h
		}
		if h, ok := el.Closest("a").Attr("href"); ok {
			return title, h
		}
		return title, ""
	}
	// The card may itself be the anchor found by a link crawl.
	if goquery.NodeName(card) == "a" {
		if t := strings.TrimSpace(card.Text()); t != "" {
			href, _ := card.Attr("href")
			return t, href
		}
	}
	return "", ""
}

// imageURL finds a thumbnail inside the card, preferring src over the
// lazy-load data-src.
func imageURL(card *goquery.Selection, selectors ...string) string {
	if len(selectors) == 0 {
		selectors = []string{"img"}
	}
	for _, sel := range selectors {
		img := card.Find(sel).First()
		if img.Length() == 0 {
			continue
		}
		if src, ok := img.Attr("src"); ok && src != "" {
			return src
		}
		if src, ok := img.Attr("data-src"); ok && src != "" {
			return src
		}
	}
	return ""
}

// absoluteURL prefixes site-relative hrefs with the source's base URL.
func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}
