package models

// TimeFilter names a recency window for auction results
type TimeFilter string

const (
	TimeFilter5M  TimeFilter = "5m"
	TimeFilter1Y  TimeFilter = "1y"
	TimeFilter2Y  TimeFilter = "2y"
	TimeFilterAll TimeFilter = "all"
)

// SearchCriteria is one validated search request. Zero values mean unset.
// Immutable once a job has been created from it.
type SearchCriteria struct {
	Make       string     `json:"make"`
	Model      string     `json:"model,omitempty"`
	YearFrom   int        `json:"year_from,omitempty"`
	YearTo     int        `json:"year_to,omitempty"`
	Keyword    string     `json:"keyword,omitempty"`
	TimeFilter TimeFilter `json:"time_filter,omitempty"`
	Region     string     `json:"region,omitempty"`
}

// HasYearBound reports whether either end of the year range is set
func (c SearchCriteria) HasYearBound() bool {
	return c.YearFrom > 0 || c.YearTo > 0
}
