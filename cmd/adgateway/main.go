package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/config"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/database"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/geo"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/httpserver"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/metrics"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/middleware"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/report"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/upstream"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/viewability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet
		panic("failed to load config: " + err.Error())
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting adserver gateway",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.String("viewability_sink", cfg.Viewability.Sink),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics("adgateway", reg)

	client := upstream.NewClient(cfg.Upstream, logger, m)

	resolver := newGeoResolver(cfg, logger, m)
	defer func() { _ = resolver.Close() }()

	sinks, closeSink, err := newSinks(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize viewability sink", zap.Error(err))
	}
	defer closeSink()

	beacons := viewability.NewHandler(
		viewability.NewDispatcher(cfg.Viewability.WriteTimeout, logger, m, sinks...),
		resolver,
		cfg.Viewability.MaxBodyBytes,
		logger,
	)

	handler := httpserver.NewServer(&httpserver.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		Gatherer:    reg,
		Upstream:    client,
		Reports:     report.NewService(client, logger, m),
		Viewability: viewability.CORS(beacons),
	})

	// Recovery -> Logging -> RateLimit -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger, "/", "/health", cfg.Metrics.Path)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           recoveryMW.Handler(loggingMW.Handler(rateLimitMW.Handler(handler))),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Upstream.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// newGeoResolver returns nil when geo enrichment is disabled or the database
// cannot be opened; events are then stored without geo fields.
func newGeoResolver(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *geo.Resolver {
	if !cfg.Geo.Enabled {
		return nil
	}
	provider, err := geo.NewMaxMindProvider(cfg.Geo.DatabasePath)
	if err != nil {
		logger.Warn("geo enrichment disabled", zap.Error(err))
		return nil
	}
	logger.Info("geo enrichment enabled", zap.String("database", cfg.Geo.DatabasePath))
	return geo.NewResolver(provider, cfg.Geo.CacheSize, cfg.Geo.CacheTTL, logger, m)
}

// newSinks always includes the log sink and adds the configured backend.
func newSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]viewability.Sink, func(), error) {
	sinks := []viewability.Sink{viewability.NewLogSink(logger)}
	noop := func() {}

	switch cfg.Viewability.Sink {
	case config.SinkRedis:
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, noop, err
		}
		sinks = append(sinks, viewability.NewRedisSink(rdb.Client, cfg.Viewability.Stream, cfg.Viewability.StreamMaxLen))
		return sinks, func() { _ = rdb.Close() }, nil

	case config.SinkPostgres:
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, noop, err
		}
		sink := viewability.NewPostgresSink(db.Pool, cfg.Viewability.Table)
		if err := sink.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		return append(sinks, sink), db.Close, nil

	case config.SinkClickHouse:
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			return nil, noop, err
		}
		sink, err := viewability.NewClickHouseSink(ch.Conn, cfg.Viewability.Table)
		if err == nil {
			err = sink.EnsureTable(ctx)
		}
		if err != nil {
			_ = ch.Close()
			return nil, noop, err
		}
		return append(sinks, sink), func() { _ = ch.Close() }, nil
	}

	return sinks, noop, nil
}
