package stats

import (
	"github.com/car-scanner/internal/models"
)

// ComputeComparisonStats builds the cross-region arbitrage view: per-region
// price blocks in native currency, Germany additionally converted to USD at
// the supplied EUR/USD rate, and the USA-minus-Germany price delta. The
// delta keys are present but nil when either region has no priced listings.
func ComputeComparisonStats(usa, germany []models.UsedCarListing, eurUsd float64) Map {
	usaBlock, usaPrices := regionBlock(usa, "USD")
	deBlock, dePrices := regionBlock(germany, "EUR")

	if len(dePrices) > 0 {
		deBlock["avg_price_usd"] = round2(mean(dePrices) * eurUsd)
		deBlock["median_price_usd"] = round2(median(dePrices) * eurUsd)
	}

	out := Map{
		"usa":          usaBlock,
		"germany":      deBlock,
		"eur_usd_rate": eurUsd,
	}

	if len(usaPrices) > 0 && len(dePrices) > 0 {
		germanyMeanUSD := mean(dePrices) * eurUsd
		delta := mean(usaPrices) - germanyMeanUSD
		out["price_delta_usd"] = round2(delta)
		out["price_delta_pct"] = round1(delta / germanyMeanUSD * 100)
		if delta > 0 {
			out["arbitrage_direction"] = "Buy in Germany"
		} else {
			out["arbitrage_direction"] = "Buy in USA"
		}
	} else {
		out["price_delta_usd"] = nil
		out["price_delta_pct"] = nil
		out["arbitrage_direction"] = nil
	}
	return out
}

func regionBlock(listings []models.UsedCarListing, currency string) (Map, []float64) {
	var prices, daysOnMarket []float64
	for _, l := range listings {
		if l.ListPrice != nil {
			prices = append(prices, *l.ListPrice)
		}
		if l.DaysOnMarket != nil {
			daysOnMarket = append(daysOnMarket, float64(*l.DaysOnMarket))
		}
	}

	block := Map{
		"count":    len(listings),
		"currency": currency,
	}
	if len(prices) > 0 {
		lo, hi := minMax(prices)
		block["avg_price"] = round2(mean(prices))
		block["median_price"] = median(prices)
		block["min_price"] = lo
		block["max_price"] = hi
	}
	if len(daysOnMarket) > 0 {
		block["avg_days_on_market"] = round1(mean(daysOnMarket))
	}
	return block, prices
}
