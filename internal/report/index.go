package report

import (
	"math"
	"strconv"
	"strings"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

// KeyRule tells an Index how to read the composite key of a record. Upstream
// endpoints name their dimension fields differently, so every call site goes
// through a rule instead of reading fields directly.
type KeyRule struct {
	Primary   func(models.RawRecord) string
	Secondary func(models.RawRecord) (string, bool)
	Name      func(models.RawRecord) string
}

// DayRule reads rows of a /stats query grouped by day and a second dimension.
var DayRule = KeyRule{
	Primary: func(r models.RawRecord) string {
		return text(r["dimension"])
	},
	Secondary: func(r models.RawRecord) (string, bool) {
		return idKey(r["iddimension_2"])
	},
	Name: func(r models.RawRecord) string {
		return text(r["dimension_2"])
	},
}

// EventRule reads rows of the /events query. Events are keyed by ad id only;
// the id lives in iddimension_2 or, failing that, in iddimension.
var EventRule = KeyRule{
	Primary: func(models.RawRecord) string {
		return ""
	},
	Secondary: func(r models.RawRecord) (string, bool) {
		if id, ok := idKey(r["iddimension_2"]); ok {
			return id, true
		}
		return idKey(r["iddimension"])
	},
	Name: func(r models.RawRecord) string {
		if name := text(r["dimension_2"]); name != "" {
			return name
		}
		return text(r["dimension"])
	},
}

// Index is a composite-key lookup table over one flat upstream result set.
type Index struct {
	rows        map[string]models.RawRecord
	primaries   []string
	secondaries []string
	names       map[string]string
}

// NewIndex indexes rows under "primary|secondary". When two rows share a
// composite key the later one replaces the earlier one.
func NewIndex(rows []models.RawRecord, rule KeyRule) *Index {
	idx := &Index{
		rows:  make(map[string]models.RawRecord, len(rows)),
		names: make(map[string]string),
	}
	seenPrimary := make(map[string]struct{})

	for _, row := range rows {
		primary := rule.Primary(row)
		secondary, ok := rule.Secondary(row)

		idx.rows[compositeKey(primary, secondary)] = row

		if _, seen := seenPrimary[primary]; !seen && primary != "" {
			seenPrimary[primary] = struct{}{}
			idx.primaries = append(idx.primaries, primary)
		}

		if !ok {
			continue
		}
		if _, seen := idx.names[secondary]; !seen {
			name := ""
			if rule.Name != nil {
				name = rule.Name(row)
			}
			idx.names[secondary] = name
			idx.secondaries = append(idx.secondaries, secondary)
		}
	}

	return idx
}

// Lookup returns the row stored under (primary, secondary).
func (idx *Index) Lookup(primary, secondary string) (models.RawRecord, bool) {
	if idx == nil {
		return nil, false
	}
	row, ok := idx.rows[compositeKey(primary, secondary)]
	return row, ok
}

// Primaries returns the distinct non-empty primary keys in first-seen order.
func (idx *Index) Primaries() []string {
	if idx == nil {
		return nil
	}
	return idx.primaries
}

// Secondaries returns the distinct non-falsy secondary ids in first-seen order.
func (idx *Index) Secondaries() []string {
	if idx == nil {
		return nil
	}
	return idx.secondaries
}

// Name returns the display name carried by the first row seen for id.
func (idx *Index) Name(id string) string {
	if idx == nil {
		return ""
	}
	return idx.names[id]
}

func compositeKey(primary, secondary string) string {
	return primary + "|" + secondary
}

// idKey turns a raw id into its key form. nil, "", 0, false and NaN are
// falsy and report ok=false.
func idKey(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		if id == "" {
			return "", false
		}
		return id, true
	case float64:
		if id == 0 || math.IsNaN(id) {
			return "", false
		}
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		if id == 0 {
			return "", false
		}
		return strconv.Itoa(id), true
	case int64:
		if id == 0 {
			return "", false
		}
		return strconv.FormatInt(id, 10), true
	case bool:
		if !id {
			return "", false
		}
		return "true", true
	default:
		s := text(id)
		return s, s != ""
	}
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	case interface{ String() string }:
		return s.String()
	default:
		return ""
	}
}
