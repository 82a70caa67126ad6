package models

// PlatformType distinguishes auction houses from classified marketplaces
type PlatformType string

const (
	PlatformTypeAuction PlatformType = "auction"
	PlatformTypeUsedCar PlatformType = "used_car"
)

// Region is the market a platform serves
type Region string

const (
	RegionUSA     Region = "USA"
	RegionGermany Region = "Germany"
)

// Platform represents one scrapable listing source. Rows are seeded at
// startup and read-mostly afterward.
type Platform struct {
	ID           int          `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"` // registry key, e.g. "bat"
	DisplayName  string       `json:"displayName" db:"display_name"`
	PlatformType PlatformType `json:"platformType" db:"platform_type"`
	Region       Region       `json:"region" db:"region"`
	BaseURL      string       `json:"baseUrl" db:"base_url"`
	IsActive     bool         `json:"isActive" db:"is_active"`
}
