package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/multicloud-dashboard/internal/observability"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"go.uber.org/zap"
)

// AccessLog appends one entry per request to sink once the response is written
func AccessLog(sink repositories.AccessLogRepository, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			requestID := GetRequestIDFromContext(r.Context())

			entry := &models.AccessLogEntry{
				Timestamp: start.UTC(),
				Method:    r.Method,
				URL:       r.URL.RequestURI(),
				Status:    status,
				Duration:  strconv.FormatInt(elapsed.Milliseconds(), 10) + "ms",
				IPAddress: ClientIP(r),
				UserAgent: r.UserAgent(),
				RequestID: requestID,
			}
			if err := sink.InsertAccess(r.Context(), entry); err != nil {
				logger.Warn("failed to write access log", zap.Error(err))
			}

			logger.Debug("request completed",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", elapsed))
		})
	}
}

// Metrics records request counts and latency labelled by the matched route
func Metrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
