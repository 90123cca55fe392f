package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix = "quota:lock:"

	// DefaultLockTTL bounds how long a crashed replica can keep a user locked.
	DefaultLockTTL = 5 * time.Minute

	defaultLockRetry = 50 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// Deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica using the same Redis.
// Locks are SET NX PX keys; the TTL must cover the longest analysis.
type RedisLocker struct {
	rdb   redis.Cmdable
	ttl   time.Duration
	retry time.Duration
}

// NewRedisLocker creates a Redis-backed Locker. A non-positive ttl means DefaultLockTTL.
func NewRedisLocker(rdb redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, retry: defaultLockRetry}
}

func lockKey(key string) string {
	return lockKeyPrefix + key
}

// TryLock makes a single SET NX attempt.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	k := lockKey(key)
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", k, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.releaser(k, token), true, nil
}

// Lock polls until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		release, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// The caller's ctx may already be cancelled when the work ends, so release uses its own.
func (l *RedisLocker) releaser(k, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(ctx, l.rdb, []string{k}, token).Err(); err != nil {
				slog.Warn("releasing quota lock", "key", k, "error", err)
			}
		})
	}
}
