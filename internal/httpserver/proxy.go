package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/marcosvitor-goonadgroup/adserver-api/internal/middleware"
	"github.com/marcosvitor-goonadgroup/adserver-api/internal/upstream"
)

const maxForwardBody = 1 << 20

// Forwarder relays a request to the ad-server API whatever the answer's status.
type Forwarder interface {
	Do(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

func (s *Server) forward(route forwardRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if route.params != nil {
			for k, v := range route.params(r) {
				query.Set(k, v)
			}
		}

		var body []byte
		if r.Body != nil && r.Method != http.MethodGet {
			b, err := io.ReadAll(io.LimitReader(r.Body, maxForwardBody))
			if err != nil {
				s.errorResponse(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			body = b
		}

		resp, err := s.upstream.Do(r.Context(), upstream.Request{
			Method: r.Method,
			Path:   upstreamPath(route.upstreamPath, r),
			Query:  query,
			Body:   body,
		})
		if err != nil {
			s.logger.Error("forward failed",
				zap.String("request_id", middleware.RequestID(r.Context())),
				zap.String("route", route.upstreamPath),
				zap.Error(err),
			)
			s.recordForward(route, http.StatusInternalServerError)
			s.errorResponse(w, err.Error(), http.StatusInternalServerError)
			return
		}

		for _, h := range upstream.ForwardHeaders {
			if v := resp.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		s.recordForward(route, resp.StatusCode)

		if len(resp.Body) == 0 {
			w.WriteHeader(resp.StatusCode)
			return
		}
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}
}

func (s *Server) recordForward(route forwardRoute, status int) {
	if s.metrics != nil {
		s.metrics.RecordForward(route.upstreamPath, status)
	}
}

// upstreamPath fills the {id} placeholder of template from the request.
func upstreamPath(template string, r *http.Request) string {
	if !strings.Contains(template, "{id}") {
		return template
	}
	return strings.ReplaceAll(template, "{id}", url.PathEscape(r.PathValue("id")))
}
