package models

import (
	"strconv"

	"github.com/goccy/go-json"
)

// RawRecord is one row as decoded from an upstream stats or events response.
type RawRecord map[string]any

// ===========================================
// NORMALIZED METRICS
// ===========================================

// StatsRow holds the normalized numeric metrics for one (date, entity) pair.
type StatsRow struct {
	Requests          float64 `json:"requests"`
	Impressions       float64 `json:"impressions"`
	ImpressionsUnique float64 `json:"impressions_unique"`
	Views             float64 `json:"views"`
	Clicks            float64 `json:"clicks"`
	ClicksUnique      float64 `json:"clicks_unique"`
	Conversions       float64 `json:"conversions"`
	Subscriptions     float64 `json:"subscriptions"`
	Passback          float64 `json:"passback"`
	CPM               float64 `json:"cpm"`
	CPC               float64 `json:"cpc"`
	CPA               float64 `json:"cpa"`
	Amount            float64 `json:"amount"`
	AmountPub         float64 `json:"amount_pub"`
}

// VideoRow holds the normalized video quartile metrics for one ad.
type VideoRow struct {
	Starts        float64 `json:"starts"`
	FirstQuartile float64 `json:"first_quartile"`
	Midpoint      float64 `json:"midpoint"`
	ThirdQuartile float64 `json:"third_quartile"`
	Complete      float64 `json:"complete"`
}

// ===========================================
// REPORT TREE
// ===========================================

// EntityID is an upstream dimension id kept in its string form. Integer ids
// are written back to JSON as numbers.
type EntityID string

// MarshalJSON emits integer ids as JSON numbers and anything else as a string.
func (id EntityID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// DateRange is the caller-supplied reporting window.
type DateRange struct {
	Begin string `json:"dateBegin"`
	End   string `json:"dateEnd"`
}

type Report struct {
	CampaignID string    `json:"campaign_id"`
	DateRange  DateRange `json:"date_range"`
	Sites      []Site    `json:"sites"`
}

type Site struct {
	SiteID   EntityID `json:"site_id"`
	SiteName string   `json:"site_name"`
	Days     []Day    `json:"days"`
}

type Day struct {
	Date  string    `json:"date"`
	Stats *StatsRow `json:"stats"`
	Zones []Zone    `json:"zones"`
}

type Zone struct {
	ZoneID   EntityID  `json:"zone_id"`
	ZoneName string    `json:"zone_name"`
	Stats    *StatsRow `json:"stats"`
	Ads      []Ad      `json:"ads"`
}

type Ad struct {
	AdID   EntityID  `json:"ad_id"`
	AdName string    `json:"ad_name"`
	Stats  StatsRow  `json:"stats"`
	Video  *VideoRow `json:"video"`
}
