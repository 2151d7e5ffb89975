package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/internal/observability"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/audit"
	"go.uber.org/zap"
)

func TestRateLimiter(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	limiter := NewRateLimiter(1, 2, metrics, zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	h := limiter.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/dashboard", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, call("192.0.2.1:1000").Code)
	assert.Equal(t, http.StatusOK, call("192.0.2.1:1001").Code)

	w := call("192.0.2.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal))

	// another client has its own bucket
	assert.Equal(t, http.StatusOK, call("198.51.100.9:1000").Code)

	// one token refills after a second
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, call("192.0.2.1:1003").Code)
}

type memoryAccessSink struct {
	mu      sync.Mutex
	entries []*models.AccessLogEntry
}

func (s *memoryAccessSink) InsertAccess(_ context.Context, e *models.AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func TestAccessLogAndRequestContext(t *testing.T) {
	sink := &memoryAccessSink{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestContext)
	r.Use(AccessLog(sink, zap.NewNop()))
	r.Use(Metrics(metrics))

	var ip, agent, requestID string
	r.Get("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		ip = audit.ClientIP(r.Context())
		agent = audit.UserAgent(r.Context())
		requestID = GetRequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/42?x=1", nil)
	req.RemoteAddr = "203.0.113.5:4444"
	req.Header.Set("User-Agent", "dashboard-test")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.5", ip)
	assert.Equal(t, "dashboard-test", agent)
	assert.NotEmpty(t, requestID)

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, http.MethodGet, entry.Method)
	assert.Equal(t, "/api/users/42?x=1", entry.URL)
	assert.Equal(t, http.StatusTeapot, entry.Status)
	assert.Equal(t, "203.0.113.5", entry.IPAddress)
	assert.Equal(t, requestID, entry.RequestID)
	assert.Contains(t, entry.Duration, "ms")

	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/users/{id}", "418")))
}
