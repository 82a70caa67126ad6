package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/car-scanner/internal/models"
)

var (
	yearRe      = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	usNumberRe  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	deNumberRe  = regexp.MustCompile(`\d[\d.]*(?:,\d+)?`)
	mileageKmRe = regexp.MustCompile(`([\d.]+)\s*km`)
	regDateRe   = regexp.MustCompile(`(?:EZ|Erstzulassung)[:\s]*(\d{2})/(\d{4})`)
)

// splitTitle finds a 4-digit model year anywhere in a listing title and
// returns it together with the text that follows. Titles without a year
// return the whole title as rest.
func splitTitle(title string) (year int, rest string) {
	title = strings.TrimSpace(title)
	loc := yearRe.FindStringIndex(title)
	if loc == nil {
		return 0, title
	}
	year, _ = strconv.Atoi(title[loc[0]:loc[1]])
	return year, strings.TrimSpace(title[loc[1]:])
}

// ParseTitle splits an auction title such as "1995 BMW M3 Coupe" into its
// year, make and model parts. The year may sit anywhere in the title; the
// first token after it becomes the make and the remainder the model. With
// no year present the first two tokens are taken as make and model.
func ParseTitle(title string) (year int, mk, model string) {
	year, rest := splitTitle(title)
	fields := strings.Fields(rest)
	if year == 0 {
		if len(fields) >= 2 {
			return 0, fields[0], fields[1]
		}
		if len(fields) == 1 {
			return 0, fields[0], ""
		}
		return 0, "", ""
	}
	if len(fields) == 0 {
		return year, "", ""
	}
	return year, fields[0], strings.Join(fields[1:], " ")
}

// ParseTitleTrim splits a marketplace title such as "2015 BMW 3 Series
// Sport" into year, make, model and trim. The second token after the year
// is the model and anything beyond it the trim line.
func ParseTitleTrim(title string) (year int, mk, model, trim string) {
	year, rest := splitTitle(title)
	fields := strings.Fields(rest)
	switch len(fields) {
	case 0:
		return year, "", "", ""
	case 1:
		return year, fields[0], "", ""
	case 2:
		return year, fields[0], fields[1], ""
	default:
		return year, fields[0], fields[1], strings.Join(fields[2:], " ")
	}
}

// ParsePriceUSD extracts an amount from US-formatted price text such as
// "USD $10,000" or "$24,500". Returns nil when no number is present.
func ParsePriceUSD(text string) *float64 {
	m := usNumberRe.FindString(text)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParsePriceEUR extracts an amount from German-formatted price text such as
// "25.000 €" or "12.500 € VB", where periods separate thousands and a comma
// marks decimals.
func ParsePriceEUR(text string) *float64 {
	m := deNumberRe.FindString(text)
	if m == "" {
		return nil
	}
	m = strings.ReplaceAll(m, ".", "")
	m = strings.ReplaceAll(m, ",", ".")
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}

func firstInt(text string) *int {
	m := usNumberRe.FindString(text)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || f <= 0 {
		return nil
	}
	n := int(f)
	return &n
}

// ParseMileage extracts a US mileage reading such as "45,000 mi".
func ParseMileage(text string) *int {
	return firstInt(text)
}

// ParseCount extracts the leading integer from counter text such as
// "23 bids".
func ParseCount(text string) *int {
	return firstInt(text)
}

// ParseMileageKM extracts a German odometer reading such as "125.000 km".
func ParseMileageKM(text string) *int {
	m := mileageKmRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ".", ""))
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// ParseYear reads the first 4-digit model year out of free text.
func ParseYear(text string) *int {
	m := yearRe.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// ParseRegistrationYear reads a German first-registration marker such as
// "EZ 06/2018" from free text.
func ParseRegistrationYear(text string) *int {
	m := regDateRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return nil
	}
	return &n
}

// SoldFromText reports whether auction result text marks a completed sale.
// "not sold" wins over a bare "sold" occurrence.
func SoldFromText(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "sold") && !strings.Contains(lower, "not sold")
}

var endDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006",
}

// ParseEndDate parses an auction end timestamp in the formats the sites
// emit. Unparsable input yields nil and the listing stays in scope for
// time-window filtering.
func ParseEndDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	return nil
}

// nonCarTokens mark parts, accessories and memorabilia that surface on
// model pages alongside actual vehicles.
var nonCarTokens = []string{
	"wheels", "seats", "hardtop", "hard top", "engine", "transmission",
	"luggage", "toolkit", "tool kit", "memorabilia", "literature",
	"brochure", "poster", "sign", "neon", "helmet", "jacket", "parts",
}

var accessoryPhraseRe = regexp.MustCompile(`\bfor\s+(a|an)\s`)

// IsNonCarItem reports whether a listing title describes parts or
// memorabilia rather than a vehicle. A matched token only excludes the
// listing when the title also reads like an accessory ("Wheels for a ...")
// or carries no model year at all.
func IsNonCarItem(title string, year int) bool {
	lower := strings.ToLower(title)
	matched := false
	for _, token := range nonCarTokens {
		if strings.Contains(lower, token) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	return accessoryPhraseRe.MatchString(lower) || year == 0
}

// YearPolicy controls what a year-range filter does with listings whose
// year could not be extracted. Sources disagree on this, so each adapter
// keeps its site's behavior.
type YearPolicy int

const (
	DropUnknownYear YearPolicy = iota
	KeepUnknownYear
)

// MatchYear applies the criteria's year range to a listing year.
func MatchYear(year *int, c models.SearchCriteria, policy YearPolicy) bool {
	if !c.HasYearBound() {
		return true
	}
	if year == nil || *year == 0 {
		return policy == KeepUnknownYear
	}
	if c.YearFrom > 0 && *year < c.YearFrom {
		return false
	}
	if c.YearTo > 0 && *year > c.YearTo {
		return false
	}
	return true
}

// MatchKeyword does a case-insensitive substring check across the given
// fields. An empty keyword matches everything; nil fields are skipped.
func MatchKeyword(keyword string, fields ...*string) bool {
	if keyword == "" {
		return true
	}
	k := strings.ToLower(keyword)
	for _, f := range fields {
		if f != nil && strings.Contains(strings.ToLower(*f), k) {
			return true
		}
	}
	return false
}

// TimeCutoff converts a named recency window into the oldest acceptable
// end date. The zero time means no cutoff.
func TimeCutoff(tf models.TimeFilter, now time.Time) time.Time {
	switch tf {
	case models.TimeFilter5M:
		return now.AddDate(0, 0, -150)
	case models.TimeFilter1Y:
		return now.AddDate(0, 0, -365)
	case models.TimeFilter2Y:
		return now.AddDate(0, 0, -730)
	default:
		return time.Time{}
	}
}

// WithinWindow keeps listings whose end date is unknown or not older than
// the cutoff.
func WithinWindow(endDate *time.Time, cutoff time.Time) bool {
	if cutoff.IsZero() || endDate == nil {
		return true
	}
	return !endDate.Before(cutoff)
}

// Slug lower-cases a name and joins its words with the separator a source
// expects in its URL paths.
func Slug(s, sep string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", sep)
}

func strPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
