package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/threadline/threadline/internal/observability"
)

// HTTP metric names.
const (
	RequestsTotal       = "http_requests_total"
	RequestDuration     = "http_request_duration_ms"
	ResponseSizeBytes   = "http_response_size_bytes"
	ErrorsTotal         = "http_errors_total"
	unmatchedRouteLabel = "/unknown"
)

// statusRecorder captures what a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// routeLabel is the chi route pattern, so /avatar/ada and /avatar/bob share
// a series. Requests chi did not match are folded into one label.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRouteLabel
}

// quietRoute reports routes polled by orchestrators, logged at debug.
func quietRoute(route string) bool {
	return route == "/" || route == "/metrics" || strings.HasPrefix(route, "/health")
}

// RequestMetrics counts and times each request and logs it with its
// request id.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routeLabel(r)
		status := strconv.Itoa(rec.status)

		if tel := observability.TelemetrySystem; tel != nil {
			labels := map[string]string{"method": r.Method, "endpoint": route, "status": status}
			_ = tel.Counter(RequestsTotal, 1, labels)
			_ = tel.Histogram(RequestDuration, elapsed, labels)
			_ = tel.Gauge(ResponseSizeBytes, float64(rec.bytes), map[string]string{"endpoint": route})

			if rec.status >= http.StatusBadRequest {
				class := "client_error"
				if rec.status >= http.StatusInternalServerError {
					class = "server_error"
				}
				_ = tel.Counter(ErrorsTotal, 1, map[string]string{
					"method":     r.Method,
					"endpoint":   route,
					"status":     status,
					"error_type": class,
				})
			}
		}

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
			zap.Int64("response_size", rec.bytes),
			zap.String("request_id", GetRequestID(r.Context())),
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			fields = append(fields, zap.String("origin", origin))
		}
		if quietRoute(route) && rec.status < http.StatusBadRequest {
			logger.Debug("HTTP request completed", fields...)
			return
		}
		logger.Info("HTTP request completed", fields...)
	})
}
