package viewability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/geo"
)

type stubProvider struct{}

func (stubProvider) Lookup(ip string) (*geo.Info, error) {
	return &geo.Info{Country: "Brazil", CountryCode: "BR", Region: "Pernambuco", City: "Recife", Latitude: -8.05, Longitude: -34.9}, nil
}

func (stubProvider) Close() error { return nil }

func newTestHandler(sink *recordingSink, resolver *geo.Resolver) http.Handler {
	h := NewHandler(NewDispatcher(time.Second, zap.NewNop(), nil, sink), resolver, 0, zap.NewNop())
	h.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return CORS(h)
}

func TestHandler_EnrichesAndDispatches(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	resolver := geo.NewResolver(stubProvider{}, 10, time.Hour, zap.NewNop(), nil)
	h := newTestHandler(sink, resolver)

	req := httptest.NewRequest(http.MethodPost, "/viewability", strings.NewReader(
		`{"zone":"42","url":"https://pub.example/a","viewed":1,"visible_pct":66.6,"elapsed_ms":"1500","ts":"2026-03-01T09:00:00Z"}`,
	))
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	req.Header.Set("Origin", "https://pub.example")
	req.Header.Set("Referer", "https://pub.example/a")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "42", ev.Zone)
	assert.Equal(t, "https://pub.example/a", ev.URL)
	assert.Equal(t, "https://pub.example/a", ev.Referrer)
	assert.Equal(t, "Mozilla/5.0", ev.UserAgent)
	assert.True(t, ev.Viewed)
	assert.Equal(t, int64(67), ev.VisiblePct)
	assert.Equal(t, int64(1500), ev.ElapsedMs)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, "203.0.113.7", ev.IP)
	assert.Equal(t, "BR", ev.CountryCode)
	assert.Equal(t, "Recife", ev.City)
}

func TestHandler_DefaultsMissingFields(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	h := newTestHandler(sink, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/viewability", strings.NewReader(`{"ts":"yesterday"}`)))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.False(t, ev.Viewed)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), ev.Timestamp)
	assert.Empty(t, ev.CountryCode)
}

func TestHandler_EmptyBodyStillRecorded(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	h := newTestHandler(sink, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/viewability", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, sink.events, 1)
}

func TestHandler_MalformedBodyIsDropped(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	h := newTestHandler(sink, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/viewability", strings.NewReader(`{"zone":`)))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, sink.events)
}

func TestHandler_Preflight(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	h := newTestHandler(sink, nil)

	req := httptest.NewRequest(http.MethodOptions, "/viewability", nil)
	req.Header.Set("Origin", "https://pub.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
	assert.Empty(t, sink.events)
}

func TestInteger(t *testing.T) {
	assert.Equal(t, int64(3), integer(2.6))
	assert.Equal(t, int64(-1), integer("-1"))
	assert.Equal(t, int64(0), integer("abc"))
	assert.Equal(t, int64(0), integer(nil))
	assert.Equal(t, int64(0), integer(1e300))
}
