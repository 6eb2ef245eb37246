package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/metrics"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/upstream"
)

// Querier issues one parameterized query against the ad-server API.
type Querier interface {
	Query(ctx context.Context, path string, params map[string]string) ([]models.RawRecord, error)
}

// Params identify one campaign report.
type Params struct {
	CampaignID string
	DateBegin  string
	DateEnd    string
}

// InputError is a caller mistake detected before any upstream call.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

// query is one of the four upstream queries a report is built from.
type query struct {
	name   string
	path   string
	group  string
	group2 string
	report string
}

var (
	siteQuery   = query{name: "site", path: "/stats", group: "day", group2: "site"}
	zoneQuery   = query{name: "zone", path: "/stats", group: "day", group2: "zone"}
	adQuery     = query{name: "ad", path: "/stats", group: "day", group2: "ad"}
	eventsQuery = query{name: "events", path: "/events", group: "ad", report: "1"}
)

// Service builds campaign reports from the ad-server stats API.
type Service struct {
	upstream Querier
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewService creates a new report service.
func NewService(upstream Querier, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		upstream: upstream,
		logger:   logger,
		metrics:  m,
	}
}

// Build fetches the site, zone and ad stats plus the video events of a
// campaign concurrently and assembles the report tree.
//
// A failed stats query fails the report. A failed events query only drops
// the video data: every ad is returned with a null video row.
func (s *Service) Build(ctx context.Context, p Params) (*models.Report, error) {
	if p.DateBegin == "" || p.DateEnd == "" {
		return nil, &InputError{Message: "dateBegin and dateEnd are required"}
	}

	start := time.Now()

	var bySite, byZone, byAd, events []models.RawRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bySite, err = s.fetch(gctx, p, siteQuery)
		return err
	})
	g.Go(func() (err error) {
		byZone, err = s.fetch(gctx, p, zoneQuery)
		return err
	})
	g.Go(func() (err error) {
		byAd, err = s.fetch(gctx, p, adQuery)
		return err
	})
	g.Go(func() error {
		rows, err := s.fetch(gctx, p, eventsQuery)
		if err != nil {
			if gctx.Err() != nil {
				// a stats query already failed the report
				return nil
			}
			s.logger.Warn("events query failed, serving report without video data",
				zap.String("campaign_id", p.CampaignID),
				zap.Error(err),
			)
			if s.metrics != nil {
				s.metrics.RecordEventsDegraded()
			}
			return nil
		}
		events = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("report build failed",
			zap.String("campaign_id", p.CampaignID),
			zap.String("date_begin", p.DateBegin),
			zap.String("date_end", p.DateEnd),
			zap.Error(err),
		)
		s.record("upstream_error", 0, start)
		return nil, err
	}

	report := Build(p.CampaignID, models.DateRange{Begin: p.DateBegin, End: p.DateEnd}, Sources{
		BySite: NewIndex(bySite, DayRule),
		ByZone: NewIndex(byZone, DayRule),
		ByAd:   NewIndex(byAd, DayRule),
		Events: NewIndex(events, EventRule),
	})

	s.record("ok", len(report.Sites), start)
	return report, nil
}

func (s *Service) fetch(ctx context.Context, p Params, q query) ([]models.RawRecord, error) {
	rows, err := s.upstream.Query(ctx, q.path, map[string]string{
		"dateBegin":  p.DateBegin,
		"dateEnd":    p.DateEnd,
		"idcampaign": p.CampaignID,
		"group":      q.group,
		"group2":     q.group2,
		"report":     q.report,
	})
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", q.name, err)
	}
	return rows, nil
}

func (s *Service) record(result string, sites int, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordReport(result, sites, time.Since(start))
	}
}

// ErrorResponse maps a Build error onto an HTTP status and JSON body:
// 400 for input errors, the upstream status and body for structured upstream
// errors, and a generic 500 for everything else.
func ErrorResponse(err error) (int, []byte) {
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return http.StatusBadRequest, errorBody(inputErr.Message)
	}

	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		if json.Valid(upErr.Body) {
			return upErr.StatusCode, upErr.Body
		}
		msg := string(upErr.Body)
		if msg == "" {
			msg = http.StatusText(upErr.StatusCode)
		}
		return upErr.StatusCode, errorBody(msg)
	}

	return http.StatusInternalServerError, errorBody("internal server error")
}

func errorBody(msg string) []byte {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return body
}
