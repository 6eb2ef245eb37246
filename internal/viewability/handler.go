package viewability

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/geo"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/middleware"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/models"
)

const defaultMaxBody = 16 << 10

// Handler accepts viewability beacons from ad tags. It answers 204 to every
// POST and OPTIONS request so a misbehaving sink never surfaces in the browser.
type Handler struct {
	dispatcher *Dispatcher
	geo        *geo.Resolver
	logger     *zap.Logger
	maxBody    int64
	now        func() time.Time
}

func NewHandler(d *Dispatcher, resolver *geo.Resolver, maxBody int64, logger *zap.Logger) *Handler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Handler{
		dispatcher: d,
		geo:        resolver,
		logger:     logger,
		maxBody:    maxBody,
		now:        time.Now,
	}
}

// CORS wraps h with the permissive policy ad tags need: any origin,
// Content-Type only, preflights answered by h itself.
func CORS(h http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		OptionsPassthrough: true,
	})(h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		h.logger.Debug("failed to read viewability beacon", zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	beacon := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &beacon); err != nil {
			h.logger.Warn("malformed viewability beacon",
				zap.String("request_id", middleware.RequestID(r.Context())),
				zap.Error(err),
			)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	ev := h.event(r, beacon)
	h.dispatcher.Dispatch(r.Context(), ev)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) event(r *http.Request, beacon map[string]any) *models.ViewabilityEvent {
	ev := &models.ViewabilityEvent{
		ID:         uuid.NewString(),
		Timestamp:  h.timestamp(beacon["ts"]),
		Zone:       str(beacon["zone"]),
		URL:        str(beacon["url"]),
		Referrer:   r.Referer(),
		UserAgent:  r.UserAgent(),
		Viewed:     truthy(beacon["viewed"]),
		VisiblePct: integer(beacon["visible_pct"]),
		ElapsedMs:  integer(beacon["elapsed_ms"]),
		IP:         middleware.ClientIP(r),
	}

	if info := h.geo.Resolve(ev.IP); info != nil {
		ev.Country = info.Country
		ev.CountryCode = info.CountryCode
		ev.Region = info.Region
		ev.City = info.City
		ev.Latitude = info.Latitude
		ev.Longitude = info.Longitude
	}

	return ev
}

// timestamp uses the tag's clock when it sent a parseable RFC 3339 value.
func (h *Handler) timestamp(v any) time.Time {
	if s, ok := v.(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
	}
	return h.now().UTC()
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}

func integer(v any) int64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int64(math.Round(f))
}
