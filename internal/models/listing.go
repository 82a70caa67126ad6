package models

import "time"

// AuctionListing is the normalized record for one auction result.
// Exactly one of StartingBid/SoldPrice is populated: SoldPrice when the
// lot sold, StartingBid when it did not. Adapters enforce this.
type AuctionListing struct {
	ID             int64      `json:"id" db:"id"`
	PlatformID     int        `json:"platformId" db:"platform_id"`
	JobID          string     `json:"jobId" db:"job_id"`
	Year           *int       `json:"year,omitempty" db:"year"`
	Make           *string    `json:"make,omitempty" db:"make"`
	Model          *string    `json:"model,omitempty" db:"model"`
	StartingBid    *float64   `json:"startingBid,omitempty" db:"starting_bid"`
	SoldPrice      *float64   `json:"soldPrice,omitempty" db:"sold_price"`
	AuctionDays    *int       `json:"auctionDays,omitempty" db:"auction_days"`
	BidCount       *int       `json:"bidCount,omitempty" db:"bid_count"`
	TimesListed    int        `json:"timesListed" db:"times_listed"`
	Description    *string    `json:"description,omitempty" db:"description"`
	URL            *string    `json:"url,omitempty" db:"url"`
	ImageURL       *string    `json:"imageUrl,omitempty" db:"image_url"`
	AuctionEndDate *time.Time `json:"auctionEndDate,omitempty" db:"auction_end_date"`
	IsSold         bool       `json:"isSold" db:"is_sold"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}

// SetBid assigns the observed bid amount to the correct price field for
// the listing's sold state, clearing the other
func (l *AuctionListing) SetBid(amount *float64) {
	if l.IsSold {
		l.SoldPrice = amount
		l.StartingBid = nil
		return
	}
	l.StartingBid = amount
	l.SoldPrice = nil
}

// UsedCarListing is the normalized record for one classified listing
type UsedCarListing struct {
	ID           int64      `json:"id" db:"id"`
	PlatformID   int        `json:"platformId" db:"platform_id"`
	JobID        string     `json:"jobId" db:"job_id"`
	Year         *int       `json:"year,omitempty" db:"year"`
	Make         *string    `json:"make,omitempty" db:"make"`
	Model        *string    `json:"model,omitempty" db:"model"`
	Trim         *string    `json:"trim,omitempty" db:"trim"`
	ListPrice    *float64   `json:"listPrice,omitempty" db:"list_price"`
	Mileage      *int       `json:"mileage,omitempty" db:"mileage"`
	DaysOnMarket *int       `json:"daysOnMarket,omitempty" db:"days_on_market"`
	DealerName   *string    `json:"dealerName,omitempty" db:"dealer_name"`
	Location     *string    `json:"location,omitempty" db:"location"`
	Description  *string    `json:"description,omitempty" db:"description"`
	URL          *string    `json:"url,omitempty" db:"url"`
	ImageURL     *string    `json:"imageUrl,omitempty" db:"image_url"`
	ListingDate  *time.Time `json:"listingDate,omitempty" db:"listing_date"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	Currency     string     `json:"currency" db:"currency"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}
