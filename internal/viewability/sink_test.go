package viewability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/metrics"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

var testEvent = &models.ViewabilityEvent{
	ID:          "0b7d2c1e-5f0a-4d1c-9e4b-2a7f3c9d8e11",
	Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	Zone:        "42",
	URL:         "https://publisher.example/article",
	Viewed:      true,
	VisiblePct:  75,
	ElapsedMs:   1200,
	IP:          "203.0.113.7",
	CountryCode: "BR",
}

// recordingSink collects events and optionally fails.
type recordingSink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []*models.ViewabilityEvent
	ctxErr error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(ctx context.Context, ev *models.ViewabilityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.ctxErr = ctx.Err()
	return s.err
}

type fakeStream struct {
	args *redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = a
	return redis.NewStringResult("1-0", f.err)
}

type fakeExecer struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, arguments)
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

type fakeClickHouse struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeClickHouse) Exec(ctx context.Context, query string, args ...any) error {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return f.err
}

func TestDispatcher_FailingSinkDoesNotStopOthers(t *testing.T) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	core, logs := observer.New(zap.ErrorLevel)
	broken := &recordingSink{name: "broken", err: errors.New("connection reset")}
	healthy := &recordingSink{name: "healthy"}

	d := NewDispatcher(time.Second, zap.New(core), m, broken, healthy)
	d.Dispatch(context.Background(), testEvent)

	assert.Len(t, broken.events, 1)
	assert.Len(t, healthy.events, 1)
	assert.Equal(t, 1, logs.FilterMessage("viewability sink write failed").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewabilityEvents.WithLabelValues("broken", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewabilityEvents.WithLabelValues("healthy", "ok")))
}

func TestDispatcher_IgnoresCallerCancellation(t *testing.T) {
	sink := &recordingSink{name: "s"}
	d := NewDispatcher(time.Second, zap.NewNop(), nil, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, testEvent)

	require.Len(t, sink.events, 1)
	assert.NoError(t, sink.ctxErr)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, NewLogSink(zap.New(core)).Write(context.Background(), testEvent))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "42", fields["zone"])
	assert.Equal(t, true, fields["viewed"])
	assert.Equal(t, int64(75), fields["visible_pct"])
}

func TestRedisSink(t *testing.T) {
	stream := &fakeStream{}
	sink := NewRedisSink(stream, "viewability", 1000)

	require.NoError(t, sink.Write(context.Background(), testEvent))
	require.NotNil(t, stream.args)
	assert.Equal(t, "viewability", stream.args.Stream)
	assert.Equal(t, int64(1000), stream.args.MaxLen)
	assert.True(t, stream.args.Approx)

	values := stream.args.Values.(map[string]any)
	assert.Equal(t, testEvent.ID, values["id"])

	var decoded models.ViewabilityEvent
	require.NoError(t, json.Unmarshal([]byte(values["event"].(string)), &decoded))
	assert.Equal(t, *testEvent, decoded)

	stream.err = errors.New("NOGROUP")
	assert.ErrorContains(t, sink.Write(context.Background(), testEvent), "xadd viewability")
}

func TestPostgresSink(t *testing.T) {
	db := &fakeExecer{}
	sink := NewPostgresSink(db, "viewability_events")

	require.NoError(t, sink.EnsureTable(context.Background()))
	require.NoError(t, sink.Write(context.Background(), testEvent))

	require.Len(t, db.queries, 2)
	assert.Contains(t, db.queries[0], `CREATE TABLE IF NOT EXISTS "viewability_events"`)
	assert.Contains(t, db.queries[1], `INSERT INTO "viewability_events"`)
	require.Len(t, db.args[1], 16)
	assert.Equal(t, testEvent.ID, db.args[1][0])
	assert.Equal(t, testEvent.Zone, db.args[1][2])

	db.err = errors.New("duplicate key")
	assert.Error(t, sink.Write(context.Background(), testEvent))
}

func TestPostgresSink_QuotesTableName(t *testing.T) {
	db := &fakeExecer{}
	sink := NewPostgresSink(db, `events"; DROP TABLE users; --`)

	require.NoError(t, sink.Write(context.Background(), testEvent))
	assert.Contains(t, db.queries[0], `INSERT INTO "events""; DROP TABLE users; --"`)
}

func TestClickHouseSink(t *testing.T) {
	conn := &fakeClickHouse{}
	sink, err := NewClickHouseSink(conn, "viewability_events")
	require.NoError(t, err)

	require.NoError(t, sink.EnsureTable(context.Background()))
	require.NoError(t, sink.Write(context.Background(), testEvent))

	require.Len(t, conn.queries, 2)
	assert.Contains(t, conn.queries[0], "ENGINE = MergeTree")
	assert.Contains(t, conn.queries[1], "INSERT INTO viewability_events")
	assert.Len(t, conn.args[1], 16)

	_, err = NewClickHouseSink(conn, "events; DROP")
	assert.Error(t, err)
}
