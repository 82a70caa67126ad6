package stats

import (
	"github.com/car-scanner/internal/models"
)

// ComputeUsedCarStats aggregates a set of used-car listings. Prices are
// summarized in whatever currency the listings carry; mixed-currency sets
// should be split by the caller before aggregation.
func ComputeUsedCarStats(listings []models.UsedCarListing) Map {
	if len(listings) == 0 {
		return Map{}
	}

	var prices, mileages, daysOnMarket []float64
	active := 0
	for _, l := range listings {
		if l.IsActive {
			active++
		}
		if l.ListPrice != nil {
			prices = append(prices, *l.ListPrice)
		}
		if l.Mileage != nil {
			mileages = append(mileages, float64(*l.Mileage))
		}
		if l.DaysOnMarket != nil {
			daysOnMarket = append(daysOnMarket, float64(*l.DaysOnMarket))
		}
	}

	out := Map{
		"total_listings": len(listings),
		"active_count":   active,
	}

	if len(prices) > 0 {
		lo, hi := minMax(prices)
		out["avg_list_price"] = round2(mean(prices))
		out["median_list_price"] = median(prices)
		out["min_list_price"] = lo
		out["max_list_price"] = hi
	}
	if len(mileages) > 0 {
		out["avg_mileage"] = round1(mean(mileages))
		out["median_mileage"] = median(mileages)
	}
	if len(daysOnMarket) > 0 {
		out["avg_days_on_market"] = round1(mean(daysOnMarket))
		out["median_days_on_market"] = median(daysOnMarket)
	}
	return out
}
