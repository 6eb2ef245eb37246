package report

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

func TestNormalizeStats_EmptyRecordIsAllZero(t *testing.T) {
	assert.Equal(t, models.StatsRow{}, NormalizeStats(models.RawRecord{}))
	assert.Equal(t, models.StatsRow{}, NormalizeStats(nil))
}

func TestNormalizeStats_CoercesEveryField(t *testing.T) {
	row := NormalizeStats(models.RawRecord{
		"requests":           120.0,
		"impressions":        "100",
		"impressions_unique": json.Number("80"),
		"views":              " 50 ",
		"clicks":             5,
		"clicks_unique":      int64(4),
		"conversions":        true,
		"subscriptions":      nil,
		"passback":           "n/a",
		"cpm":                "1.25",
		"cpc":                math.NaN(),
		"cpa":                math.Inf(1),
		"amount":             -3.5,
		"amount_pub":         map[string]any{"nested": 1},
	})

	assert.Equal(t, models.StatsRow{
		Requests:          120,
		Impressions:       100,
		ImpressionsUnique: 80,
		Views:             50,
		Clicks:            5,
		ClicksUnique:      4,
		Conversions:       1,
		Subscriptions:     0,
		Passback:          0,
		CPM:               1.25,
		CPC:               0,
		CPA:               0,
		Amount:            -3.5,
		AmountPub:         0,
	}, row)
}

func TestNormalizeStats_ResultIsAlwaysFinite(t *testing.T) {
	inputs := []any{nil, "", "abc", "NaN", "Infinity", "1e999", math.NaN(), math.Inf(-1), []any{1}, struct{}{}, -7.0}
	for _, in := range inputs {
		row := NormalizeStats(models.RawRecord{"impressions": in, "amount": in})
		assert.False(t, math.IsNaN(row.Impressions) || math.IsInf(row.Impressions, 0), "input %#v", in)
		assert.False(t, math.IsNaN(row.Amount) || math.IsInf(row.Amount, 0), "input %#v", in)
	}
}

func TestNormalizeVideo_StartsFallbacks(t *testing.T) {
	tests := []struct {
		name string
		rec  models.RawRecord
		want float64
	}{
		{"dedicated counter", models.RawRecord{"starts": 9.0, "start": 8.0, "impressions": 7.0}, 9},
		{"start alias", models.RawRecord{"start": 8.0, "impressions": 7.0}, 8},
		{"impressions fallback", models.RawRecord{"impressions": 7.0}, 7},
		{"nothing", models.RawRecord{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVideo(tt.rec).Starts)
		})
	}
}

func TestNormalizeVideo_AcceptsCamelCaseQuartiles(t *testing.T) {
	video := NormalizeVideo(models.RawRecord{
		"firstQuartile": "40",
		"midpoint":      30.0,
		"thirdQuartile": 20.0,
		"complete":      "ten",
	})

	assert.Equal(t, models.VideoRow{FirstQuartile: 40, Midpoint: 30, ThirdQuartile: 20}, video)
}
