package quota

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "quota:user:"

	fieldRequestsToday      = "requests_today"
	fieldLastRequestDate    = "last_request_date"
	fieldSubscriptionActive = "subscription_active"
)

// RedisStore keeps quota records in Redis hashes so they survive restarts.
// Replicas sharing one RedisStore must also share a RedisLocker (see WithLocker),
// otherwise the check-then-record sequence is only serialized per process.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func recordKey(userID string) string {
	return recordKeyPrefix + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Record, error) {
	key := recordKey(userID)
	vals, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Record{}, fmt.Errorf("hgetall %s: %w", key, err)
	}

	var rec Record
	if v, ok := vals[fieldRequestsToday]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Record{}, fmt.Errorf("parsing %s for %s: %w", fieldRequestsToday, key, err)
		}
		rec.RequestsToday = n
	}
	rec.LastRequestDate = vals[fieldLastRequestDate]
	rec.SubscriptionActive = vals[fieldSubscriptionActive] == "1"
	return rec, nil
}

func (s *RedisStore) Put(ctx context.Context, userID string, rec Record) error {
	key := recordKey(userID)
	sub := "0"
	if rec.SubscriptionActive {
		sub = "1"
	}
	err := s.rdb.HSet(ctx, key,
		fieldRequestsToday, rec.RequestsToday,
		fieldLastRequestDate, rec.LastRequestDate,
		fieldSubscriptionActive, sub,
	).Err()
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}
