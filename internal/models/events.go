package models

import (
	"time"
)

// ViewabilityEvent is a beacon posted by the ad tag, enriched with request
// and geo metadata.
type ViewabilityEvent struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"ts"`
	Zone       string    `json:"zone"`
	URL        string    `json:"url"`
	Referrer   string    `json:"referrer,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Viewed     bool      `json:"viewed"`
	VisiblePct int64     `json:"visible_pct"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	IP         string    `json:"ip"`

	// Geo info
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"lat,omitempty"`
	Longitude   float64 `json:"lon,omitempty"`
}
