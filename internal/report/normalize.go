package report

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

// NormalizeStats maps a raw upstream record onto the fixed StatsRow schema.
// Missing or non-numeric fields become 0.
func NormalizeStats(rec models.RawRecord) models.StatsRow {
	return models.StatsRow{
		Requests:          field(rec, "requests"),
		Impressions:       field(rec, "impressions"),
		ImpressionsUnique: field(rec, "impressions_unique"),
		Views:             field(rec, "views"),
		Clicks:            field(rec, "clicks"),
		ClicksUnique:      field(rec, "clicks_unique"),
		Conversions:       field(rec, "conversions"),
		Subscriptions:     field(rec, "subscriptions"),
		Passback:          field(rec, "passback"),
		CPM:               field(rec, "cpm"),
		CPC:               field(rec, "cpc"),
		CPA:               field(rec, "cpa"),
		Amount:            field(rec, "amount"),
		AmountPub:         field(rec, "amount_pub"),
	}
}

// NormalizeVideo maps a raw events record onto the VideoRow schema. Starts
// falls back to "start" and then "impressions" when no start counter exists.
func NormalizeVideo(rec models.RawRecord) models.VideoRow {
	return models.VideoRow{
		Starts:        field(rec, "starts", "start", "impressions"),
		FirstQuartile: field(rec, "first_quartile", "firstQuartile"),
		Midpoint:      field(rec, "midpoint"),
		ThirdQuartile: field(rec, "third_quartile", "thirdQuartile"),
		Complete:      field(rec, "complete"),
	}
}

// field reads the first of names present in rec and coerces it to a number.
func field(rec models.RawRecord, names ...string) float64 {
	for _, name := range names {
		if v, ok := rec[name]; ok && v != nil {
			return toNumber(v)
		}
	}
	return 0
}

// toNumber never fails: anything that is not a finite number yields 0.
func toNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
