package viewability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/metrics"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

// Sink receives enriched viewability events. Storage belongs to the sink.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev *models.ViewabilityEvent) error
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, ev *models.ViewabilityEvent) error {
	s.logger.Info("viewability",
		zap.String("event_id", ev.ID),
		zap.String("zone", ev.Zone),
		zap.String("url", ev.URL),
		zap.Bool("viewed", ev.Viewed),
		zap.Int64("visible_pct", ev.VisiblePct),
		zap.Int64("elapsed_ms", ev.ElapsedMs),
		zap.Time("ts", ev.Timestamp),
		zap.String("ip", ev.IP),
		zap.String("country_code", ev.CountryCode),
	)
	return nil
}

// Dispatcher hands each event to every configured sink. A failing sink is
// logged and counted; it never affects the other sinks or the caller.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(timeout time.Duration, logger *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Dispatch writes ev to all sinks. Cancellation of ctx (the caller hanging
// up) does not abort the writes; only the dispatcher timeout does.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *models.ViewabilityEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	for _, sink := range d.sinks {
		err := sink.Write(ctx, ev)
		if err != nil {
			d.logger.Error("viewability sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
		}
		if d.metrics != nil {
			d.metrics.RecordViewability(sink.Name(), err)
		}
	}
}
