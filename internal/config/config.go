package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the adserver gateway.
type Config struct {
	Server      ServerConfig
	Upstream    UpstreamConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Geo         GeoConfig
	Viewability ViewabilityConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	ClickHouse  ClickHouseConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	Version         string
	ShutdownTimeout time.Duration
}

// UpstreamConfig configures the ad-server API client.
type UpstreamConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	BreakerEnabled bool
}

type RateLimitConfig struct {
	Enabled     bool
	RPS         float64
	Burst       int
	BeaconRPS   float64
	BeaconBurst int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures GeoIP enrichment of viewability events.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
	CacheSize    int
	CacheTTL     time.Duration
}

// Sink backends accepted by ViewabilityConfig.Sink.
const (
	SinkLog        = "log"
	SinkRedis      = "redis"
	SinkPostgres   = "postgres"
	SinkClickHouse = "clickhouse"
)

// ViewabilityConfig selects where viewability beacons are handed off.
// Events are always logged; Sink adds one external backend.
type ViewabilityConfig struct {
	Sink         string
	Stream       string
	StreamMaxLen int64
	Table        string
	WriteTimeout time.Duration
	MaxBodyBytes int64
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ClickHouseConfig struct {
	Addr     []string
	Database string
	User     string
	Password string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADGW_HTTP_ADDR", ":"+getEnv("PORT", "4000")),
			Env:             getEnv("ADGW_ENV", "development"),
			Version:         getEnv("ADGW_VERSION", "1.0.0"),
			ShutdownTimeout: getDurationEnv("ADGW_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("ADGW_UPSTREAM_URL", "https://api.adsrv.net/v2"),
			Token:          getEnv("ADGW_UPSTREAM_TOKEN", getEnv("API_TOKEN", "")),
			Timeout:        getDurationEnv("ADGW_UPSTREAM_TIMEOUT", 30*time.Second),
			BreakerEnabled: getBoolEnv("ADGW_UPSTREAM_BREAKER", true),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("ADGW_RATE_LIMIT_ENABLED", true),
			RPS:         getFloatEnv("ADGW_RATE_LIMIT_RPS", 50),
			Burst:       getIntEnv("ADGW_RATE_LIMIT_BURST", 20),
			BeaconRPS:   getFloatEnv("ADGW_RATE_LIMIT_BEACON_RPS", 1000),
			BeaconBurst: getIntEnv("ADGW_RATE_LIMIT_BEACON_BURST", 200),
		},
		Log: LogConfig{
			Level:  getEnv("ADGW_LOG_LEVEL", "info"),
			Format: getEnv("ADGW_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ADGW_METRICS_ENABLED", true),
			Path:    getEnv("ADGW_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("ADGW_GEO_ENABLED", false),
			DatabasePath: getEnv("ADGW_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
			CacheSize:    getIntEnv("ADGW_GEO_CACHE_SIZE", 10000),
			CacheTTL:     getDurationEnv("ADGW_GEO_CACHE_TTL", time.Hour),
		},
		Viewability: ViewabilityConfig{
			Sink:         getEnv("ADGW_VIEWABILITY_SINK", SinkLog),
			Stream:       getEnv("ADGW_VIEWABILITY_STREAM", "viewability"),
			StreamMaxLen: int64(getIntEnv("ADGW_VIEWABILITY_STREAM_MAXLEN", 1000000)),
			Table:        getEnv("ADGW_VIEWABILITY_TABLE", "viewability_events"),
			WriteTimeout: getDurationEnv("ADGW_VIEWABILITY_WRITE_TIMEOUT", 2*time.Second),
			MaxBodyBytes: int64(getIntEnv("ADGW_VIEWABILITY_MAX_BODY", 16<<10)),
		},
		Database: DatabaseConfig{
			Host:     getEnv("ADGW_DB_HOST", "localhost"),
			Port:     getIntEnv("ADGW_DB_PORT", 5432),
			User:     getEnv("ADGW_DB_USER", "adgateway"),
			Password: getEnv("ADGW_DB_PASSWORD", ""),
			DBName:   getEnv("ADGW_DB_NAME", "adgateway"),
			SSLMode:  getEnv("ADGW_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ADGW_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("ADGW_DB_MIN_CONNS", 1),
		},
		Redis: RedisConfig{
			Addr:     getEnv("ADGW_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ADGW_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ADGW_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     getSliceEnv("ADGW_CLICKHOUSE_ADDR", []string{"localhost:9000"}),
			Database: getEnv("ADGW_CLICKHOUSE_DB", "adserver"),
			User:     getEnv("ADGW_CLICKHOUSE_USER", "default"),
			Password: getEnv("ADGW_CLICKHOUSE_PASSWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Upstream.Token == "" {
		return fmt.Errorf("ADGW_UPSTREAM_TOKEN (or API_TOKEN) is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("ADGW_UPSTREAM_URL must not be empty")
	}
	switch c.Viewability.Sink {
	case SinkLog, SinkRedis, SinkPostgres, SinkClickHouse:
	default:
		return fmt.Errorf("unknown ADGW_VIEWABILITY_SINK %q", c.Viewability.Sink)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
