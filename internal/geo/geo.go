package geo

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/metrics"
)

// Info holds geographic information for an IP.
type Info struct {
	Country     string
	CountryCode string
	Region      string
	City        string
	Latitude    float64
	Longitude   float64
}

// Provider resolves an IP address to geographic information.
type Provider interface {
	Lookup(ip string) (*Info, error)
	Close() error
}

// Resolver wraps a Provider with a TTL cache. A nil Resolver resolves nothing.
type Resolver struct {
	provider Provider
	cache    *cache
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewResolver creates a cached resolver around provider.
func NewResolver(provider Provider, cacheSize int, cacheTTL time.Duration, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &Resolver{
		provider: provider,
		cache: &cache{
			data:    make(map[string]cacheEntry),
			maxSize: cacheSize,
			ttl:     cacheTTL,
		},
		logger:  logger,
		metrics: m,
	}
}

// Resolve returns geo info for ip, or nil when the address is unknown,
// private or unparseable.
func (r *Resolver) Resolve(ip string) *Info {
	if r == nil || r.provider == nil || ip == "" {
		return nil
	}

	if info, ok := r.cache.get(ip); ok {
		r.record("hit")
		return info
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() {
		return nil
	}

	info, err := r.provider.Lookup(ip)
	if err != nil {
		r.logger.Debug("geo lookup failed", zap.String("ip", ip), zap.Error(err))
		r.record("error")
		return nil
	}

	r.cache.set(ip, info)
	r.record("miss")
	return info
}

// Close releases the underlying provider.
func (r *Resolver) Close() error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close()
}

func (r *Resolver) record(result string) {
	if r.metrics != nil {
		r.metrics.RecordGeoLookup(result)
	}
}

type cache struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	info      *Info
	expiresAt time.Time
}

func (c *cache) get(ip string) (*Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[ip]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.info, true
}

func (c *cache) set(ip string, info *Info) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict an arbitrary entry when full
	if _, exists := c.data[ip]; !exists && len(c.data) >= c.maxSize {
		for k := range c.data {
			delete(c.data, k)
			break
		}
	}

	c.data[ip] = cacheEntry{info: info, expiresAt: time.Now().Add(c.ttl)}
}
