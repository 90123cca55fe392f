package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRateLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, "admin", limit, window), mr
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func get(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/api/v1/users/42/quota", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl, _ := setupRateLimiter(t, 5, time.Minute)
	handler := rl.Middleware(okHandler)

	for i := 0; i < 5; i++ {
		rec := get(handler, "192.168.1.1:12345")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl, _ := setupRateLimiter(t, 3, time.Minute)
	handler := rl.Middleware(okHandler)

	for i := 0; i < 3; i++ {
		rec := get(handler, "10.0.0.1:12345")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := get(handler, "10.0.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl, _ := setupRateLimiter(t, 1, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	handler := rl.Middleware(okHandler)

	assert.Equal(t, http.StatusOK, get(handler, "10.0.0.2:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(handler, "10.0.0.2:1").Code)

	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, get(handler, "10.0.0.2:1").Code)
}

func TestRateLimiter_DifferentIPsIndependent(t *testing.T) {
	rl, _ := setupRateLimiter(t, 2, time.Minute)
	handler := rl.Middleware(okHandler)

	get(handler, "1.1.1.1:1")
	get(handler, "1.1.1.1:1")

	assert.Equal(t, http.StatusOK, get(handler, "2.2.2.2:1").Code)
}

func TestRateLimiter_KeysByScopeAndForwardedIP(t *testing.T) {
	rl, mr := setupRateLimiter(t, 5, time.Minute)
	handler := rl.Middleware(okHandler)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, mr.Exists("ratelimit:admin:203.0.113.7"), "keys: %v", mr.Keys())
}

func TestRateLimiter_CustomKey(t *testing.T) {
	rl, mr := setupRateLimiter(t, 5, time.Minute)
	handler := rl.WithKey(func(r *http.Request) string { return r.Header.Get("X-Operator") }).Middleware(okHandler)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Operator", "ops")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, mr.Exists("ratelimit:admin:ops"), "keys: %v", mr.Keys())
}

func TestRateLimiter_FailsOpenOnRedisError(t *testing.T) {
	rl, mr := setupRateLimiter(t, 1, time.Minute)
	mr.Close()

	rec := get(rl.Middleware(okHandler), "3.3.3.3:1")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	assert.Equal(t, "198.51.100.4", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.1 ,10.0.0.1")
	assert.Equal(t, "203.0.113.1", ClientIP(req))
}
