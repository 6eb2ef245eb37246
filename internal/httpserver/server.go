package httpserver

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/config"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/metrics"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/middleware"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/report"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Upstream    Forwarder
	Reports     *report.Service
	Viewability http.Handler
}

// Server wraps the gateway HTTP handlers.
type Server struct {
	upstream Forwarder
	reports  *report.Service
	logger   *zap.Logger
	config   *config.Config
	metrics  *metrics.Metrics
}

// NewServer constructs the gateway http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		upstream: deps.Upstream,
		reports:  deps.Reports,
		logger:   deps.Logger,
		config:   deps.Config,
		metrics:  deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled && deps.Gatherer != nil {
		mux.Handle("GET "+deps.Config.Metrics.Path, metrics.Handler(deps.Gatherer))
	}

	// Campaign report
	mux.HandleFunc("GET /campaigns/{id}/report", s.handleCampaignReport)

	// Viewability beacon
	if deps.Viewability != nil {
		mux.Handle("POST "+middleware.BeaconPath, deps.Viewability)
		mux.Handle("OPTIONS "+middleware.BeaconPath, deps.Viewability)
	}

	// Pass-through routes
	for _, route := range forwardRoutes {
		mux.HandleFunc(route.method+" "+route.pattern, s.forward(route))
	}

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok", "version": s.config.Server.Version})
}

// ---- Campaign Report ----

func (s *Server) handleCampaignReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rep, err := s.reports.Build(r.Context(), report.Params{
		CampaignID: r.PathValue("id"),
		DateBegin:  q.Get("dateBegin"),
		DateEnd:    q.Get("dateEnd"),
	})
	if err != nil {
		status, body := report.ErrorResponse(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	s.jsonResponse(w, rep)
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
