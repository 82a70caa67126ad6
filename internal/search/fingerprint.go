package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/car-scanner/internal/models"
)

// Fingerprint derives a deterministic cache key from search criteria and the
// requested platform set. The platform slice is copied and sorted before
// hashing, so permutations of the same set produce the same key. Every
// parameter key is always present in the hashed form; an unset field hashes
// as null rather than being omitted.
func Fingerprint(criteria models.SearchCriteria, platforms []string) string {
	sorted := make([]string, len(platforms))
	copy(sorted, platforms)
	sort.Strings(sorted)

	payload := map[string]interface{}{
		"params":    paramsMap(criteria),
		"platforms": sorted,
	}

	// json.Marshal writes map keys in sorted order, which gives a canonical form
	blob, _ := json.Marshal(payload)
	digest := sha256.Sum256(blob)
	return hex.EncodeToString(digest[:])
}

// paramsMap flattens criteria into a fixed-key map with nulls for unset fields
func paramsMap(c models.SearchCriteria) map[string]interface{} {
	params := map[string]interface{}{
		"make":        nil,
		"model":       nil,
		"year_from":   nil,
		"year_to":     nil,
		"keyword":     nil,
		"time_filter": nil,
		"region":      nil,
	}

	if c.Make != "" {
		params["make"] = c.Make
	}
	if c.Model != "" {
		params["model"] = c.Model
	}
	if c.YearFrom != 0 {
		params["year_from"] = c.YearFrom
	}
	if c.YearTo != 0 {
		params["year_to"] = c.YearTo
	}
	if c.Keyword != "" {
		params["keyword"] = c.Keyword
	}
	if c.TimeFilter != "" {
		params["time_filter"] = string(c.TimeFilter)
	}
	if c.Region != "" {
		params["region"] = c.Region
	}

	return params
}
