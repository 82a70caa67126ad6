package stats

import (
	"github.com/car-scanner/internal/models"
)

// ComputeAuctionStats aggregates a set of auction listings. A listing
// counts as sold only when it also carries a sold price; the sell-through
// rate is sold over total, one decimal.
func ComputeAuctionStats(listings []models.AuctionListing) Map {
	if len(listings) == 0 {
		return Map{}
	}

	var soldPrices, startingBids, bidCounts, auctionDays []float64
	unsold := 0
	for _, l := range listings {
		if l.IsSold {
			if l.SoldPrice != nil {
				soldPrices = append(soldPrices, *l.SoldPrice)
			}
		} else {
			unsold++
		}
		if l.StartingBid != nil {
			startingBids = append(startingBids, *l.StartingBid)
		}
		if l.BidCount != nil {
			bidCounts = append(bidCounts, float64(*l.BidCount))
		}
		if l.AuctionDays != nil {
			auctionDays = append(auctionDays, float64(*l.AuctionDays))
		}
	}

	out := Map{
		"total_listings":    len(listings),
		"total_sold":        len(soldPrices),
		"total_unsold":      unsold,
		"sell_through_rate": round1(float64(len(soldPrices)) / float64(len(listings)) * 100),
	}

	if len(soldPrices) > 0 {
		lo, hi := minMax(soldPrices)
		out["avg_sold_price"] = round2(mean(soldPrices))
		out["median_sold_price"] = median(soldPrices)
		out["min_sold_price"] = lo
		out["max_sold_price"] = hi
	}
	if len(startingBids) > 0 {
		out["avg_starting_bid"] = round2(mean(startingBids))
		out["median_starting_bid"] = median(startingBids)
	}
	if len(bidCounts) > 0 {
		out["avg_bids"] = round1(mean(bidCounts))
		out["median_bids"] = median(bidCounts)
	}
	if len(auctionDays) > 0 {
		out["avg_auction_days"] = round1(mean(auctionDays))
		out["median_auction_days"] = median(auctionDays)
	}
	return out
}
