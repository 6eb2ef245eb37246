package viewability

import (
	"context"
	"fmt"
	"regexp"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClickHouseExecer is the subset of clickhouse driver.Conn used by ClickHouseSink.
type ClickHouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ClickHouseSink inserts one row per event into a MergeTree table.
type ClickHouseSink struct {
	conn  ClickHouseExecer
	table string
}

func NewClickHouseSink(conn ClickHouseExecer, table string) (*ClickHouseSink, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid ClickHouse table name %q", table)
	}
	return &ClickHouseSink{conn: conn, table: table}, nil
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

// EnsureTable creates the events table if it does not exist.
func (s *ClickHouseSink) EnsureTable(ctx context.Context) error {
	err := s.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		id           UUID,
		ts           DateTime64(3, 'UTC'),
		zone         String,
		url          String,
		referrer     String,
		user_agent   String,
		viewed       Bool,
		visible_pct  Int64,
		elapsed_ms   Int64,
		ip           String,
		country      LowCardinality(String),
		country_code LowCardinality(String),
		region       String,
		city         String,
		lat          Float64,
		lon          Float64
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(ts)
	ORDER BY (zone, ts)`)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseSink) Write(ctx context.Context, ev *models.ViewabilityEvent) error {
	err := s.conn.Exec(ctx, `INSERT INTO `+s.table+` (
		id, ts, zone, url, referrer, user_agent, viewed, visible_pct, elapsed_ms,
		ip, country, country_code, region, city, lat, lon
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp, ev.Zone, ev.URL, ev.Referrer, ev.UserAgent, ev.Viewed, ev.VisiblePct, ev.ElapsedMs,
		ev.IP, ev.Country, ev.CountryCode, ev.Region, ev.City, ev.Latitude, ev.Longitude,
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}
