package models

import "time"

// PriceObservation is one append-only price point written to the history
// store when a job persists a listing. Zero Year/Mileage/Price mean unknown.
type PriceObservation struct {
	ObservedAt time.Time `json:"observedAt"`
	Platform   string    `json:"platform"`
	Region     string    `json:"region"`
	Kind       string    `json:"kind"` // auction or used_car
	Make       string    `json:"make"`
	Model      string    `json:"model"`
	Year       uint16    `json:"year"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	Sold       bool      `json:"sold"`
	Mileage    uint32    `json:"mileage"`
	URL        string    `json:"url"`
}

// TrendPoint is one month of aggregated price history for a make/model
type TrendPoint struct {
	Month    time.Time `json:"month"`
	AvgPrice float64   `json:"avgPrice"`
	MinPrice float64   `json:"minPrice"`
	MaxPrice float64   `json:"maxPrice"`
	Count    uint64    `json:"count"`
}
