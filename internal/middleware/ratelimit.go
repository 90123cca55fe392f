package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(r *http.Request) string

// RateLimiter is a sliding-window limiter backed by one Redis sorted set per key.
type RateLimiter struct {
	client redis.Cmdable
	scope  string
	limit  int
	window time.Duration
	key    KeyFunc
	now    func() time.Time
}

// NewRateLimiter allows limit requests per window for each client IP.
// scope namespaces the Redis keys, e.g. "admin" gives "ratelimit:admin:<ip>".
func NewRateLimiter(client redis.Cmdable, scope string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		scope:  scope,
		limit:  limit,
		window: window,
		key:    ClientIP,
		now:    time.Now,
	}
}

// WithKey counts requests by fn instead of the client IP.
func (rl *RateLimiter) WithKey(fn KeyFunc) *RateLimiter {
	rl.key = fn
	return rl
}

// Middleware enforces the limit. Redis errors let the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := rl.key(r)

		count, err := rl.hit(r.Context(), "ratelimit:"+rl.scope+":"+id)
		if err != nil {
			slog.Warn("rate limiter: redis error, failing open", "scope", rl.scope, "key", id, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(max(rl.limit-count, 0)))

		if count > rl.limit {
			slog.Info("rate limiter: rejected", "scope", rl.scope, "key", id)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.window.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// hit records one request under key and returns how many fall inside the window, this one included.
func (rl *RateLimiter) hit(ctx context.Context, key string) (int, error) {
	now := rl.now()
	cutoff := now.Add(-rl.window).UnixMilli()

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, rl.window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("counting requests for %s: %w", key, err)
	}
	return int(card.Val()), nil
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the peer address.
// The admin server is expected to sit behind a trusted proxy when those headers are set.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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
