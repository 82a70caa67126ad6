package models

import (
	"strings"
	"time"
)

// WatchEntry is a saved search rescanned periodically by the scheduler
type WatchEntry struct {
	ID            int        `json:"id" db:"id"`
	Make          string     `json:"make" db:"make"`
	Model         *string    `json:"model,omitempty" db:"model"`
	YearFrom      *int       `json:"yearFrom,omitempty" db:"year_from"`
	YearTo        *int       `json:"yearTo,omitempty" db:"year_to"`
	Platforms     string     `json:"platforms" db:"platforms"` // comma-separated source keys
	IntervalHours int        `json:"intervalHours" db:"interval_hours"`
	IsActive      bool       `json:"isActive" db:"is_active"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty" db:"last_run_at"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}

// PlatformKeys splits the stored platform list, dropping empty segments
func (w *WatchEntry) PlatformKeys() []string {
	var keys []string
	for _, p := range strings.Split(w.Platforms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// Due reports whether the entry should run again at the given time
func (w *WatchEntry) Due(now time.Time) bool {
	if !w.IsActive {
		return false
	}
	if w.LastRunAt == nil {
		return true
	}
	return now.Sub(*w.LastRunAt) >= time.Duration(w.IntervalHours)*time.Hour
}
