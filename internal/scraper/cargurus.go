package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/models"
	"github.com/car-scanner/internal/ratelimit"
)

const (
	carGurusKey     = "cargurus"
	carGurusBaseURL = "https://www.cargurus.com"
)

// CarGurus search URLs embed opaque entity IDs instead of names. The maps
// below cover the makes and models the site indexes; unknown combinations
// fall back to the closest match or fail the search up front.

// carGurusMakes maps lowercase make names to CarGurus make entity IDs.
var carGurusMakes = map[string]string{
	"acura": "m4", "alfa romeo": "m124", "audi": "m19", "bmw": "m3",
	"buick": "m21", "cadillac": "m22", "chevrolet": "m1", "chrysler": "m23",
	"dodge": "m24", "fiat": "m98", "ford": "m2", "genesis": "m203",
	"gmc": "m26", "honda": "m6", "hyundai": "m28", "infiniti": "m84",
	"jaguar": "m31", "jeep": "m32", "kia": "m33", "land rover": "m35",
	"lexus": "m37", "lincoln": "m38", "maserati": "m40", "mazda": "m42",
	"mercedes-benz": "m43", "mini": "m45", "mitsubishi": "m46",
	"nissan": "m12", "pontiac": "m47", "porsche": "m48", "ram": "m191",
	"scion": "m52", "subaru": "m53", "toyota": "m7", "volkswagen": "m55",
	"volvo": "m56", "tesla": "m112", "aston martin": "m110",
	"ferrari": "m25", "lamborghini": "m34", "mclaren": "m141",
	"rolls-royce": "m49", "bentley": "m20", "rivian": "m233",
	"lucid": "m234", "polestar": "m219",
}

// carGurusModels maps lowercase model names to model entity IDs, grouped
// by make.
var carGurusModels = map[string]map[string]string{
	"acura":      {"cl": "d191", "ilx": "d2137", "integra": "d36", "mdx": "d16", "nsx": "d17", "rdx": "d921", "rl": "d18", "rlx": "d2214", "rsx": "d3", "tl": "d19", "tlx": "d2278", "tsx": "d20", "zdx": "d2065"},
	"alfa romeo": {"4c": "d2277", "giulia": "d1751", "giulietta": "d1750", "spider": "d1149", "stelvio": "d2512"},
	"audi":       {"a3": "d24", "a4": "d25", "a4 allroad": "d2149", "a5": "d1034", "a5 sportback": "d2508", "a6": "d27", "a6 allroad": "d2201", "a7": "d2113", "a8": "d29", "e-tron": "d2829", "q3": "d2129", "q5": "d1988", "q7": "d930", "q8": "d2792", "r8": "d1019", "rs 3": "d2564", "rs 5": "d2136", "rs 6 avant": "d2965", "rs 7": "d2230", "rs q8": "d2993", "s3": "d1183", "s4": "d30", "s5": "d1055", "s6": "d687", "s7": "d2156", "s8": "d688", "sq5": "d2237", "tt": "d32", "tt rs": "d2177", "tts": "d2176"},
	"bmw":        {"1 series": "d1052", "2 series": "d2262", "3 series": "d1512", "4 series": "d2244", "5 series": "d1628", "6 series": "d1513", "7 series": "d1517", "8 series": "d1627", "i3": "d2263", "i4": "d2274", "i8": "d2274", "m2": "d2396", "m3": "d390", "m4": "d2258", "m5": "d391", "m6": "d825", "m8": "d2902", "x1": "d2160", "x2": "d2623", "x3": "d392", "x3 m": "d2847", "x4": "d2271", "x4 m": "d2848", "x5": "d393", "x5 m": "d2120", "x6": "d1137", "x6 m": "d2139", "x7": "d2656", "z3": "d394", "z4": "d395", "z8": "d396"},
	"buick":      {"enclave": "d1029", "encore": "d2128", "encore gx": "d2901", "envision": "d2398", "lacrosse": "d272", "regal": "d277", "verano": "d2119"},
	"cadillac":   {"ats": "d2138", "ct4": "d2963", "ct5": "d2876", "ct6": "d2352", "cts": "d138", "cts-v": "d139", "escalade": "d142", "escalade esv": "d143", "srx": "d148", "xt4": "d2673", "xt5": "d2393", "xt6": "d2843", "xts": "d2141"},
	"chevrolet":  {"blazer": "d602", "bolt ev": "d2397", "camaro": "d606", "colorado": "d614", "corvette": "d1", "cruze": "d2076", "equinox": "d616", "impala": "d619", "malibu": "d622", "silverado 1500": "d630", "silverado 2500hd": "d634", "silverado 3500hd": "d1027", "sonic": "d2112", "spark": "d2008", "suburban": "d638", "tahoe": "d639", "trailblazer": "d642", "traverse": "d1521", "trax": "d2272"},
	"chrysler":   {"200": "d2106", "300": "d165", "pacifica": "d177", "voyager": "d183"},
	"dodge":      {"challenger": "d894", "charger": "d733", "dart": "d896", "durango": "d651", "grand caravan": "d653", "journey": "d1135", "ram 1500": "d665", "ram 2500": "d667", "viper": "d678"},
	"fiat":       {"124 spider": "d1414", "500": "d1327", "500l": "d2199", "500x": "d2306"},
	"ford":       {"bronco": "d320", "bronco sport": "d3094", "ecosport": "d2506", "edge": "d923", "escape": "d330", "expedition": "d333", "explorer": "d334", "f-150": "d337", "f-250 super duty": "d341", "f-350 super duty": "d343", "fiesta": "d1060", "flex": "d1049", "focus": "d346", "fusion": "d845", "mustang": "d2", "mustang mach-e": "d2990", "ranger": "d354", "taurus": "d355", "transit cargo": "d1067", "transit connect": "d2037"},
	"genesis":    {"g70": "d2701", "g80": "d2438", "g90": "d2401", "gv80": "d3038"},
	"gmc":        {"acadia": "d925", "canyon": "d103", "sierra 1500": "d116", "sierra 2500hd": "d119", "sierra 3500hd": "d973", "terrain": "d2042", "yukon": "d130", "yukon xl": "d132"},
	"honda":      {"accord": "d585", "civic": "d586", "civic type r": "d2568", "cr-v": "d589", "element": "d590", "fit": "d744", "hr-v": "d1271", "insight": "d591", "odyssey": "d592", "passport": "d593", "pilot": "d594", "ridgeline": "d734", "s2000": "d596"},
	"hyundai":    {"accent": "d91", "elantra": "d92", "kona": "d2663", "palisade": "d2836", "santa fe": "d94", "sonata": "d96", "tucson": "d98", "veloster": "d2124", "venue": "d2882"},
	"infiniti":   {"q50": "d2207", "q60": "d2251", "qx50": "d2247", "qx55": "d3132", "qx60": "d2243", "qx80": "d2248"},
	"jaguar":     {"e-pace": "d2613", "f-pace": "d2360", "f-type": "d2209", "i-pace": "d2672", "xe": "d2368", "xf": "d1136", "xj-series": "d286", "xk-series": "d288"},
	"jeep":       {"cherokee": "d488", "compass": "d905", "gladiator": "d2021", "grand cherokee": "d490", "grand cherokee l": "d3108", "patriot": "d906", "renegade": "d2268", "wrangler": "d494", "wrangler unlimited": "d2412"},
	"kia":        {"forte": "d2043", "k5": "d3092", "niro": "d2405", "optima": "d158", "rio": "d159", "seltos": "d2991", "sorento": "d162", "soul": "d2020", "sportage": "d164", "stinger": "d2510", "telluride": "d2830"},
	"land rover": {"defender": "d151", "discovery": "d152", "discovery sport": "d2304", "range rover": "d156", "range rover evoque": "d2121", "range rover sport": "d834", "range rover velar": "d2558"},
	"lexus":      {"es": "d2720", "gs": "d2822", "gx": "d2063", "is": "d2824", "lc": "d2400", "ls": "d3040", "lx": "d3042", "nx": "d2616", "rc": "d2827", "rx": "d2647", "ux": "d2682"},
	"lincoln":    {"aviator": "d524", "continental": "d526", "corsair": "d2884", "mkc": "d2259", "mkz": "d974", "nautilus": "d2680", "navigator": "d530"},
	"maserati":   {"ghibli": "d1456", "granturismo": "d1465", "levante": "d2415", "quattroporte": "d402"},
	"mazda":      {"cx-3": "d2301", "cx-30": "d2875", "cx-5": "d2133", "cx-9": "d1023", "mazda3": "d214", "mazda6": "d215", "miata": "d221", "mx-5 miata": "d221"},
	"mercedes-benz": {"a-class": "d1206", "amg gt": "d2282", "c-class": "d66", "cla-class": "d2216", "cls-class": "d751", "e-class": "d76", "g-class": "d78", "gla-class": "d2286", "glb-class": "d2905", "glc-class": "d2361", "gle-class": "d2317", "gls-class": "d2421", "s-class": "d82", "sl-class": "d84", "slk-class": "d87", "sprinter": "d1830"},
	"mini":       {"cooper": "d436", "cooper clubman": "d1044", "countryman": "d2098"},
	"mitsubishi": {"eclipse cross": "d2666", "lancer": "d422", "mirage": "d426", "outlander": "d429", "outlander sport": "d2093"},
	"nissan":     {"350z": "d236", "370z": "d2018", "altima": "d237", "armada": "d238", "frontier": "d240", "gt-r": "d1103", "juke": "d2072", "kicks": "d2660", "leaf": "d2077", "maxima": "d242", "murano": "d243", "pathfinder": "d245", "rogue": "d1047", "rogue sport": "d2513", "sentra": "d249", "titan": "d251", "versa": "d937"},
	"pontiac":    {"firebird": "d466", "g6": "d467", "g8": "d979", "gto": "d470", "solstice": "d737", "vibe": "d477"},
	"porsche":    {"718 boxster": "d2416", "718 cayman": "d2430", "911": "d404", "boxster": "d408", "cayenne": "d410", "cayman": "d993", "macan": "d2261", "panamera": "d1037", "taycan": "d2974"},
	"ram":        {"1500": "d2110", "2500": "d2102", "3500": "d2103", "promaster": "d2229"},
	"scion":      {"fr-s": "d2140", "tc": "d433", "xb": "d435"},
	"subaru":     {"ascent": "d2650", "brz": "d2134", "crosstrek": "d2387", "forester": "d374", "impreza": "d375", "legacy": "d378", "outback": "d380", "wrx": "d2292", "wrx sti": "d2341"},
	"toyota":     {"4runner": "d290", "86": "d2436", "avalon": "d291", "camry": "d292", "c-hr": "d2474", "corolla": "d295", "corolla hatchback": "d2697", "fj cruiser": "d826", "highlander": "d298", "land cruiser": "d299", "prius": "d15", "rav4": "d306", "sequoia": "d307", "sienna": "d308", "supra": "d309", "tacoma": "d311", "tundra": "d313", "venza": "d1516", "yaris": "d827"},
	"volkswagen": {"atlas": "d2507", "beetle": "d201", "golf": "d198", "golf gti": "d199", "golf r": "d2131", "id.4": "d3098", "jetta": "d200", "passat": "d202", "tiguan": "d1104", "touareg": "d205"},
	"volvo":      {"s60": "d511", "s90": "d515", "v60": "d2266", "v90": "d520", "xc40": "d2624", "xc60": "d1629", "xc90": "d523"},
}

// Listing data sits in JSON blobs embedded in the rendered page. Each
// listing title anchors a window the remaining fields are pulled from.
var (
	carGurusTitleRe    = regexp.MustCompile(`"listingTitle":"([^"]*)"`)
	carGurusIDRe       = regexp.MustCompile(`"id":(\d{6,})`)
	carGurusYearRe     = regexp.MustCompile(`"carYear":"(\d+)"`)
	carGurusMakeRe     = regexp.MustCompile(`"makeName":"([^"]+)"`)
	carGurusModelRe    = regexp.MustCompile(`"modelName":"([^"]+)"`)
	carGurusTrimRe     = regexp.MustCompile(`"trimName":"([^"]+)"`)
	carGurusPriceRe    = regexp.MustCompile(`"priceData":\{[^}]*"current":(\d+)`)
	carGurusPriceAltRe = regexp.MustCompile(`"price":(\d+)`)
	carGurusMileageRe  = regexp.MustCompile(`"mileageData":\{"value":(\d+)`)
	carGurusLocationRe = regexp.MustCompile(`"displayLocation":"([^"]+)"`)
	carGurusCityRe     = regexp.MustCompile(`"sellerData":\{[^}]*"city":"([^"]+)"`)
	carGurusImageRe    = regexp.MustCompile(`"pictureData":\{"url":"([^"]+)"`)
	carGurusDealerRe   = regexp.MustCompile(`"serviceProviderName":"([^"]+)"`)
	carGurusDomRe      = regexp.MustCompile(`"daysOnMarket":(\d+)`)
)

const carGurusWindow = 2000

// CarGurus scrapes used-car inventory from CarGurus listing pages. The
// site blocks locally-run headless browsers aggressively, so the rendering
// proxy is the primary path and the local browser only a fallback.
type CarGurus struct {
	proxy   *RenderProxy
	browser *Browser
	budget  *ratelimit.PageBudgetTracker
	log     *logging.Logger
}

// NewCarGurus creates the CarGurus adapter.
func NewCarGurus(deps Deps) *CarGurus {
	return &CarGurus{
		proxy:   deps.Proxy,
		browser: deps.Browser,
		budget:  deps.Budget,
		log:     deps.Log.WithPlatform(carGurusKey),
	}
}

// resolveEntity maps search criteria to a CarGurus entity ID, preferring
// the more specific model entity. Fuzzy matching covers inputs like
// "mercedes" for "mercedes-benz" or "m3 competition" for "m3".
func resolveEntity(mk, model string) (string, bool) {
	makeLower := strings.ToLower(strings.TrimSpace(mk))

	if model != "" {
		modelLower := strings.ToLower(strings.TrimSpace(model))
		makeModels := carGurusModels[makeLower]
		if eid, ok := makeModels[modelLower]; ok {
			return eid, true
		}
		for name, eid := range makeModels {
			if strings.Contains(name, modelLower) || strings.Contains(modelLower, name) {
				return eid, true
			}
		}
	}

	if mid, ok := carGurusMakes[makeLower]; ok {
		return mid, true
	}
	for name, mid := range carGurusMakes {
		if strings.Contains(name, makeLower) || strings.HasPrefix(name, makeLower) {
			return mid, true
		}
	}
	return "", false
}

func (s *CarGurus) searchURL(c models.SearchCriteria, entityID string) string {
	// Slugs keep the caller's casing; only spaces become hyphens.
	slug := "l-Used-" + strings.ReplaceAll(c.Make, " ", "-")
	if c.Model != "" {
		slug += "-" + strings.ReplaceAll(c.Model, " ", "-")
	}
	slug += "-" + entityID

	target := carGurusBaseURL + "/Cars/" + slug

	var params []string
	if c.YearFrom > 0 {
		params = append(params, fmt.Sprintf("minYear=%d", c.YearFrom))
	}
	if c.YearTo > 0 {
		params = append(params, fmt.Sprintf("maxYear=%d", c.YearTo))
	}
	if len(params) > 0 {
		target += "#" + strings.Join(params, "&")
	}
	return target
}

// Search resolves the entity ID, renders the listing page and parses the
// embedded listing JSON. Results fit on a single rendered page.
func (s *CarGurus) Search(ctx context.Context, criteria models.SearchCriteria, opts Options) ([]models.UsedCarListing, error) {
	entityID, ok := resolveEntity(criteria.Make, criteria.Model)
	if !ok {
		s.log.WithFields(map[string]interface{}{
			"make":  criteria.Make,
			"model": criteria.Model,
		}).Warn("No entity mapping for make and model")
		return nil, nil
	}
	s.log.WithField("entityId", entityID).Info("Resolved search entity")

	if !allowPage(ctx, s.budget, carGurusKey) {
		s.log.Warn("Daily page budget exhausted, skipping search")
		return nil, nil
	}

	target := s.searchURL(criteria, entityID)

	var html string
	if s.proxy.Enabled() {
		s.log.WithField("url", target).Info("Fetching through rendering proxy")
		rendered, err := s.proxy.FetchRendered(ctx, target)
		if err != nil {
			s.log.WithError(err).Error("Proxy fetch failed")
			return nil, nil
		}
		html = rendered
	} else {
		rendered, ok := s.renderLocally(ctx, target)
		if !ok {
			return nil, nil
		}
		html = rendered
	}

	listings := s.parseEmbedded(html)

	// The hash params are client-side state and may be ignored, so the
	// year range is re-applied here. Listings without a year stay in.
	var out []models.UsedCarListing
	for _, l := range listings {
		if !MatchYear(l.Year, criteria, KeepUnknownYear) {
			continue
		}
		out = append(out, l)
	}

	s.log.WithField("count", len(out)).Info("Inventory scraped")
	opts.report(1, 1, len(out))
	return out, nil
}

func (s *CarGurus) renderLocally(ctx context.Context, target string) (string, bool) {
	sess, err := s.browser.NewSession(ctx, SessionOptions{})
	if err != nil {
		s.log.WithError(err).Error("Browser session failed to start")
		return "", false
	}
	defer sess.Close()

	s.log.WithField("url", target).Info("Rendering listing page")
	if err := sess.Navigate(target, 8*time.Second); err != nil {
		s.log.WithError(err).Warn("Navigation did not finish, reading partial page")
	}

	if title, err := sess.Title(); err == nil {
		if marker, blocked := BotMarker(title); blocked {
			s.log.WithField("marker", marker).Warn("Anti-bot page served instead of results")
			return "", false
		}
	}

	html, err := sess.HTML()
	if err != nil {
		s.log.WithError(err).Error("Failed to read rendered page")
		return "", false
	}
	return html, true
}

// parseEmbedded walks every listing title in the page and reads the
// surrounding JSON window for the remaining fields. Listings missing a
// year or make are discarded as parse noise.
func (s *CarGurus) parseEmbedded(html string) []models.UsedCarListing {
	var out []models.UsedCarListing
	seen := make(map[string]struct{})

	for _, m := range carGurusTitleRe.FindAllStringSubmatchIndex(html, -1) {
		title := html[m[2]:m[3]]

		start := m[0] - carGurusWindow
		if start < 0 {
			start = 0
		}
		end := m[1] + carGurusWindow
		if end > len(html) {
			end = len(html)
		}
		window := html[start:end]

		id := reGroup(carGurusIDRe, window)
		if id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}

		year := reInt(carGurusYearRe, window)
		mk := reGroup(carGurusMakeRe, window)
		if year == 0 || mk == "" {
			continue
		}

		var price *float64
		if n := reInt(carGurusPriceRe, window); n > 0 {
			f := float64(n)
			price = &f
		} else if n := reInt(carGurusPriceAltRe, window); n > 0 {
			f := float64(n)
			price = &f
		}

		location := reGroup(carGurusLocationRe, window)
		if location == "" {
			location = reGroup(carGurusCityRe, window)
		}

		var detailURL string
		if id != "" {
			detailURL = carGurusBaseURL + "/details/" + id
		}

		out = append(out, models.UsedCarListing{
			Year:         intPtr(year),
			Make:         strPtr(mk),
			Model:        strPtr(reGroup(carGurusModelRe, window)),
			Trim:         strPtr(reGroup(carGurusTrimRe, window)),
			ListPrice:    price,
			Mileage:      intPtr(reInt(carGurusMileageRe, window)),
			DaysOnMarket: intPtr(reInt(carGurusDomRe, window)),
			DealerName:   strPtr(reGroup(carGurusDealerRe, window)),
			Location:     strPtr(location),
			Description:  strPtr(title),
			URL:          strPtr(detailURL),
			ImageURL:     strPtr(reGroup(carGurusImageRe, window)),
			IsActive:     true,
			Currency:     "USD",
		})
	}
	return out
}

func reGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func reInt(re *regexp.Regexp, s string) int {
	n, _ := strconv.Atoi(reGroup(re, s))
	return n
}
