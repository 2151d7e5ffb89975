package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/upb/multicloud-dashboard/internal/observability"
	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 10000
	clientIdleTTL     = 10 * time.Minute
)

// RateLimiter applies a token bucket per client ip
type RateLimiter struct {
	mu      sync.Mutex
	clients *expirable.LRU[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
	now     func() time.Time
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRateLimiter allows rps sustained requests per client with the given burst.
// metrics may be nil.
func NewRateLimiter(rps float64, burst int, metrics *observability.Metrics, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		clients: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		metrics: metrics,
		logger:  logger,
	}
}

// Limit rejects requests over the client's budget with 429 and Retry-After
func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ClientIP(r)
		now := l.now()

		res := l.limiterFor(client).ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if !res.OK() || delay > 0 {
			res.CancelAt(now)
			retryAfter := int(math.Ceil(delay.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}

			if l.metrics != nil {
				l.metrics.RateLimitedTotal.Inc()
			}
			l.logger.Warn("rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client_ip", client))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = utils.WriteTooManyRequests(w, "Too many requests, please try again later", map[string]interface{}{
				"retryAfter": retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) limiterFor(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.clients.Get(client); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.clients.Add(client, lim)
	return lim
}
