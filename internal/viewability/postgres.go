package viewability

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

// Execer is the subset of *pgxpool.Pool used by PostgresSink.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresSink inserts one row per event.
type PostgresSink struct {
	db    Execer
	table string
}

func NewPostgresSink(db Execer, table string) *PostgresSink {
	return &PostgresSink{db: db, table: pgx.Identifier{table}.Sanitize()}
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureTable creates the events table if it does not exist.
func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		id           UUID PRIMARY KEY,
		ts           TIMESTAMPTZ NOT NULL,
		zone         TEXT NOT NULL,
		url          TEXT NOT NULL,
		referrer     TEXT NOT NULL DEFAULT '',
		user_agent   TEXT NOT NULL DEFAULT '',
		viewed       BOOLEAN NOT NULL,
		visible_pct  BIGINT NOT NULL,
		elapsed_ms   BIGINT NOT NULL,
		ip           TEXT NOT NULL,
		country      TEXT NOT NULL DEFAULT '',
		country_code TEXT NOT NULL DEFAULT '',
		region       TEXT NOT NULL DEFAULT '',
		city         TEXT NOT NULL DEFAULT '',
		lat          DOUBLE PRECISION NOT NULL DEFAULT 0,
		lon          DOUBLE PRECISION NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, ev *models.ViewabilityEvent) error {
	_, err := s.db.Exec(ctx, `INSERT INTO `+s.table+` (
		id, ts, zone, url, referrer, user_agent, viewed, visible_pct, elapsed_ms,
		ip, country, country_code, region, city, lat, lon
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		ev.ID, ev.Timestamp, ev.Zone, ev.URL, ev.Referrer, ev.UserAgent, ev.Viewed, ev.VisiblePct, ev.ElapsedMs,
		ev.IP, ev.Country, ev.CountryCode, ev.Region, ev.City, ev.Latitude, ev.Longitude,
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}
