package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siddhi-app/apiserver/internal/logging"
)

// Limit is a fixed-window rate limit for a single route.
type Limit struct {
	Window time.Duration
	Max    int64
}

// RateLimiter issues per-route middleware backed by Redis counters.
// Counters are keyed by route name and client IP. When Redis is
// unavailable the limiter fails open.
type RateLimiter struct {
	rdb    *redis.Client
	limits map[string]Limit
	logger logging.Logger
}

func NewRateLimiter(rdb *redis.Client, limits map[string]Limit, logger logging.Logger) *RateLimiter {
	return &RateLimiter{rdb: rdb, limits: limits, logger: logger}
}

// Route returns middleware enforcing the limit registered under name.
// Unknown names and a nil limiter are no-ops.
func (rl *RateLimiter) Route(name string) func(http.Handler) http.Handler {
	if rl == nil {
		return passthrough
	}
	limit, ok := rl.limits[name]
	if !ok {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("ratelimit:%s:%s", name, clientIP(r))

			pipe := rl.rdb.TxPipeline()
			count := pipe.Incr(r.Context(), key)
			pipe.Expire(r.Context(), key, limit.Window)
			if _, err := pipe.Exec(r.Context()); err != nil {
				// fail open
				rl.logger.Warn(r.Context(), "rate limiter unavailable", "route", name, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			n := count.Val()
			if n > limit.Max {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"statusCode": http.StatusTooManyRequests,
					"success":    false,
					"message":    "Too many requests, please try again later",
				})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit.Max, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(limit.Max-n, 10))
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from the forwarding
	// headers before we get here.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
