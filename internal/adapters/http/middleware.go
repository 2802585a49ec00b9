package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sp3dr4/webcache/internal/pkg/logging"
)

const headerTraceID = "X-Trace-Id"

// LoggingMiddleware injects a request-scoped logger carrying the chi request ID
// and a trace ID, which is taken from X-Trace-Id or generated.
func LoggingMiddleware(baseLogger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			if reqID := middleware.GetReqID(ctx); reqID != "" {
				ctx = logging.WithRequestID(ctx, reqID)
			}

			traceID := r.Header.Get(headerTraceID)
			if traceID == "" {
				traceID = logging.GenerateTraceID()
			}
			ctx = logging.WithTraceID(ctx, traceID)

			w.Header().Set(headerTraceID, traceID)

			requestLogger := logging.NewRequestLogger(ctx, baseLogger)
			ctx = logging.WithLogger(ctx, requestLogger)

			requestLogger.Debug("Request started",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r.WithContext(ctx))

			level := slog.LevelInfo
			if ww.statusCode >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			requestLogger.Log(ctx, level, "Request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", ww.statusCode,
				"bytes", ww.bytes,
				"duration_ms", float64(time.Since(start).Nanoseconds())/1e6,
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}
