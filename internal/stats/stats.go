// Package stats computes descriptive statistics over scraped listing sets.
// All functions are pure: they operate on already-fetched listings and
// return a keyed result map, never an error. An empty input yields an
// empty map.
package stats

import (
	"math"
	"sort"
)

// Map holds one computed statistics block keyed by stat name. Statistics
// whose underlying field no listing supplies are omitted from the map.
type Map = map[string]interface{}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median uses the standard even/odd formula; the even case averages the
// two middle values and rounds to 2 decimals.
func median(values []float64) float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return round2((s[n/2-1] + s[n/2]) / 2)
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
