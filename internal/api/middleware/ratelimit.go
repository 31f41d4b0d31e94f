package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/metrics"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements fixed window rate limiting on broker counters,
// keyed by authenticated user when present, client IP otherwise. A broker
// failure fails open: rate limiting is protection, not correctness.
type RateLimiter struct {
	broker store.Broker
	limits map[string]RateLimit
	logger zerolog.Logger
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(broker store.Broker, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		broker: broker,
		logger: logger,
		limits: map[string]RateLimit{
			"POST /messages":      {60, time.Minute},
			"GET /conversations/": {120, time.Minute},
			"GET /find":           {30, time.Minute},
			"POST /calls":         {30, time.Minute},
			"GET /presence/":      {120, time.Minute},
			"POST /presence":      {60, time.Minute},
			"POST /typing":        {120, time.Minute},
		},
	}
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func rateKey(r *http.Request, window time.Duration) string {
	principal := r.Header.Get("X-User-ID")
	if principal == "" {
		principal = "ip:" + RealIP(r)
	}
	bucket := time.Now().Unix() / int64(window.Seconds())
	return "ratelimit:" + principal + ":" + strconv.FormatInt(bucket, 10)
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.broker.Incr(r.Context(), rateKey(r, limit.Window), limit.Window*2)
		if err != nil {
			// Fail open; degraded broker must not take requests down.
			metrics.BrokerFailures.WithLabelValues("ratelimit").Inc()
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit.Requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(count) > limit.Requests {
			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			rl.logger.Warn().
				Str("endpoint", r.URL.Path).
				Str("ip", RealIP(r)).
				Msg("rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path

	for pattern, limit := range rl.limits {
		if strings.HasPrefix(key, pattern) {
			l := limit
			return &l
		}
	}
	return nil
}
