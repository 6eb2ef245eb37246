package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordUpstream(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordUpstream("/stats", 200, 10*time.Millisecond)
	m.RecordUpstream("/stats", 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("/stats", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("/stats", "error")))
}

func TestRecordReportAndViewability(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordReport("ok", 3, time.Second)
	m.RecordReport("upstream_error", 0, time.Second)
	m.RecordEventsDegraded()
	m.RecordViewability("redis", nil)
	m.RecordViewability("redis", errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportBuilds.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportBuilds.WithLabelValues("upstream_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDegraded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewabilityEvents.WithLabelValues("redis", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewabilityEvents.WithLabelValues("redis", "error")))
}

func TestRecordGatewayCounters(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordForward("/zone", 200)
	m.RecordForward("/zone", 200)
	m.RecordGeoLookup("hit")
	m.RecordRateLimitHit("beacon")
	m.RecordBreakerState("adsrv-api", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ForwardedRequests.WithLabelValues("/zone", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeoLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitHits.WithLabelValues("beacon")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("adsrv-api")))
}
