package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/config"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/metrics"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20
	breakerName    = "adsrv-api"
)

// ForwardHeaders are the upstream pagination and rate-limit headers relayed
// to gateway callers.
var ForwardHeaders = []string{
	"X-Pagination-Total-Count",
	"X-Pagination-Page-Count",
	"X-Pagination-Current-Page",
	"X-Pagination-Per-Page",
	"X-Rate-Limit-Limit",
	"X-Rate-Limit-Remaining",
	"X-Rate-Limit-Reset",
}

// Error is a structured upstream failure: the API answered with a non-2xx
// status. Transport failures are returned as plain errors instead.
type Error struct {
	StatusCode int
	Body       []byte
}

func (e *Error) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("ad-server API returned %d: %s", e.StatusCode, body)
}

// Request describes one call to the ad-server API.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Response is a raw upstream answer of any status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// errServerStatus marks 5xx answers as failures for the breaker while the
// response itself is still relayed.
var errServerStatus = errors.New("upstream server error")

// Client talks to the ad-server API with a bearer token fixed at construction.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Response]
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new ad-server API client.
func NewClient(cfg config.UpstreamConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: m,
	}

	if cfg.BreakerEnabled {
		c.breaker = c.newBreaker()
	}

	return c
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker[*Response] {
	if c.metrics != nil {
		c.metrics.RecordBreakerState(breakerName, 0)
	}

	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("upstream circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if c.metrics != nil {
				c.metrics.RecordBreakerState(name, stateToFloat(to))
			}
		},
	})
}

// Do performs req and returns the upstream answer whatever its status. Only
// transport failures (and an open breaker) produce an error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, req)
	}

	resp, err := c.breaker.Execute(func() (*Response, error) {
		resp, err := c.roundTrip(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("ad-server API unavailable: %w", err)
	}
	return resp, err
}

// Query issues a GET against a stats-like endpoint and decodes the JSON array
// of rows. Non-2xx answers are returned as *Error.
func (c *Client) Query(ctx context.Context, path string, params map[string]string) ([]models.RawRecord, error) {
	query := url.Values{}
	for k, v := range params {
		if v != "" {
			query.Set(k, v)
		}
	}

	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	var rows []models.RawRecord
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return rows, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(req.Path, 0, start)
		return nil, fmt.Errorf("request to %s failed: %w", req.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.record(req.Path, 0, start)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.record(req.Path, resp.StatusCode, start)

	c.logger.Debug("upstream request",
		zap.String("method", method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func (c *Client) record(path string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordUpstream(metricPath(path), status, time.Since(start))
	}
}

// metricPath keeps label cardinality bounded by dropping id segments.
func metricPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 {
		return "/"
	}
	return "/" + parts[0]
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
