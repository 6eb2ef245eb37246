package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec

	// Report metrics
	ReportBuilds    *prometheus.CounterVec
	ReportLatency   prometheus.Histogram
	EventsDegraded  prometheus.Counter
	ReportSiteCount prometheus.Histogram

	// Forwarding metrics
	ForwardedRequests *prometheus.CounterVec

	// Viewability metrics
	ViewabilityEvents *prometheus.CounterVec
	GeoLookups        *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests issued to the ad-server API",
			},
			[]string{"path", "status"},
		),
		UpstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Ad-server API latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"path"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),

		ReportBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_builds_total",
				Help:      "Campaign report builds by result",
			},
			[]string{"result"},
		),
		ReportLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_latency_seconds",
				Help:      "End-to-end campaign report build latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		EventsDegraded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_events_degraded_total",
				Help:      "Reports returned without video data because the events query failed",
			},
		),
		ReportSiteCount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_sites",
				Help:      "Number of sites in built reports",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),

		ForwardedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forwarded_requests_total",
				Help:      "Pass-through requests by upstream path and status",
			},
			[]string{"route", "status"},
		),

		ViewabilityEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "viewability_events_total",
				Help:      "Viewability beacons handed to sinks",
			},
			[]string{"sink", "result"},
		),
		GeoLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geo_lookups_total",
				Help:      "GeoIP lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordUpstream records one upstream call. status is 0 for transport errors.
func (m *Metrics) RecordUpstream(path string, status int, latency time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(path, label).Inc()
	m.UpstreamLatency.WithLabelValues(path).Observe(latency.Seconds())
}

// RecordBreakerState records the numeric circuit breaker state.
func (m *Metrics) RecordBreakerState(name string, state float64) {
	m.BreakerState.WithLabelValues(name).Set(state)
}

// RecordReport records a finished report build.
func (m *Metrics) RecordReport(result string, sites int, latency time.Duration) {
	m.ReportBuilds.WithLabelValues(result).Inc()
	m.ReportLatency.Observe(latency.Seconds())
	if result == "ok" {
		m.ReportSiteCount.Observe(float64(sites))
	}
}

// RecordEventsDegraded records a report served without video data.
func (m *Metrics) RecordEventsDegraded() {
	m.EventsDegraded.Inc()
}

// RecordForward records a pass-through request.
func (m *Metrics) RecordForward(route string, status int) {
	m.ForwardedRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RecordViewability records a sink write.
func (m *Metrics) RecordViewability(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ViewabilityEvents.WithLabelValues(sink, result).Inc()
}

// RecordGeoLookup records a GeoIP lookup outcome.
func (m *Metrics) RecordGeoLookup(result string) {
	m.GeoLookups.WithLabelValues(result).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
