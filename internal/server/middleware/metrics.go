package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ratewatch/ratewatch/internal/observability"
)

// responseWriter captures status, size and content type.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) streaming() bool {
	return strings.HasPrefix(rw.Header().Get("Content-Type"), "text/event-stream")
}

// RoutePattern returns the chi route pattern for r, or a fixed bucket for
// paths outside the router so label cardinality stays bounded.
func RoutePattern(r *http.Request) string {
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}

	switch path := r.URL.Path; {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/api/v1/events", path == "/":
		return path
	case strings.HasPrefix(path, "/proxy/"):
		return "/proxy/{name}/*"
	default:
		return "/unknown"
	}
}

// upstreamLabel names the proxy upstream, bounded by configuration.
func upstreamLabel(r *http.Request) string {
	if !strings.HasPrefix(r.URL.Path, "/proxy/") {
		return ""
	}
	return chi.URLParam(r, "name")
}

func quietEndpoint(endpoint string) bool {
	return endpoint == "/health/*" || strings.HasPrefix(endpoint, "/health") || endpoint == "/metrics"
}

// RequestMetrics records request metrics. Event streams are counted
// separately since their duration is the subscription lifetime.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := RoutePattern(r)
		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   strconv.Itoa(wrapped.statusCode),
		}
		if upstream := upstreamLabel(r); upstream != "" {
			labels["upstream"] = upstream
		}

		emitRequestMetrics(r, wrapped, labels, duration)
		logRequest(r, wrapped, endpoint, duration)
	})
}

func emitRequestMetrics(r *http.Request, rw *responseWriter, labels map[string]string, duration time.Duration) {
	tel := observability.TelemetrySystem
	if tel == nil {
		return
	}

	if rw.streaming() {
		_ = tel.Counter("http_streams_total", 1, labels)
		_ = tel.Histogram("http_stream_lifetime_ms", duration, labels)
		return
	}

	_ = tel.Counter("http_requests_total", 1, labels)
	_ = tel.Histogram("http_request_duration_ms", duration, labels)

	sizeLabels := map[string]string{"method": labels["method"], "endpoint": labels["endpoint"]}
	if r.ContentLength > 0 {
		_ = tel.Gauge("http_request_size_bytes", float64(r.ContentLength), sizeLabels)
	}
	_ = tel.Gauge("http_response_size_bytes", float64(rw.bytesWritten), sizeLabels)

	if rw.statusCode >= 400 {
		errorLabels := map[string]string{"error_type": "client_error"}
		for k, v := range labels {
			errorLabels[k] = v
		}
		if rw.statusCode >= 500 {
			errorLabels["error_type"] = "server_error"
		}
		_ = tel.Counter("http_errors_total", 1, errorLabels)
	}
}

func logRequest(r *http.Request, rw *responseWriter, endpoint string, duration time.Duration) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("endpoint", endpoint),
		zap.Int("status", rw.statusCode),
		zap.Duration("duration", duration),
		zap.Int64("response_size", rw.bytesWritten),
		zap.String("requestID", GetRequestID(r.Context())),
	}
	switch {
	case rw.streaming():
		logger.Info("Event stream closed", fields...)
	case quietEndpoint(endpoint):
		logger.Debug("HTTP request completed", fields...)
	default:
		logger.Info("HTTP request completed", fields...)
	}
}
