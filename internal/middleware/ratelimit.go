package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter provides per-caller sliding-window rate limiting of HTTP
// requests backed by Redis sorted sets. Authenticated requests are keyed by
// session, anonymous ones by client IP.
type RateLimiter struct {
	client    redis.Cmdable
	prefix    string
	maxReqs   int
	windowSec int
	sessionOf func(*http.Request) string
}

// NewRateLimiter creates a rate limiter that allows maxReqs per windowSec
// seconds for each caller. Keys are namespaced by prefix.
func NewRateLimiter(client redis.Cmdable, prefix string, maxReqs, windowSec int) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, maxReqs: maxReqs, windowSec: windowSec}
}

// WithSession makes the limiter key requests by the session fn resolves.
// Requests for which fn returns "" are keyed by IP.
func (rl *RateLimiter) WithSession(fn func(*http.Request) string) *RateLimiter {
	rl.sessionOf = fn
	return rl
}

// Middleware returns an HTTP middleware that enforces the rate limit.
// On Redis errors it fails open (allows the request through).
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := "ip:" + clientIP(r)
		if rl.sessionOf != nil {
			if sid := rl.sessionOf(r); sid != "" {
				caller = "session:" + sid
			}
		}
		key := "ratelimit:" + rl.prefix + ":" + caller

		allowed, err := rl.allow(r.Context(), key)
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "error", err, "caller", caller)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(rl.windowSec))
			http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := float64(now.Add(-time.Duration(rl.windowSec) * time.Second).UnixMilli())
	member := fmt.Sprintf("%d", now.UnixNano())
	score := float64(now.UnixMilli())

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.Expire(ctx, key, time.Duration(rl.windowSec)*time.Second+time.Second)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	return countCmd.Val() < int64(rl.maxReqs), nil
}

func clientIP(r *http.Request) string {
	// Check X-Forwarded-For first (trusted reverse proxy)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
