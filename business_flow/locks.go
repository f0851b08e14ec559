package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards work that must not run concurrently across process instances
type Locker interface {
	// TryLock returns a release func when the lock was acquired, or ErrLockNotAvailable
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RedisLocker implements Locker with SET NX and a token-checked release
type RedisLocker struct {
	rc     *redis.Client
	prefix string
}

func NewRedisLocker(rc *redis.Client, keyPrefix string) *RedisLocker {
	return &RedisLocker{rc: rc, prefix: keyPrefix}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	fullKey := l.key(key)
	token := uuid.NewString()

	ok, err := l.rc.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrLockNotAvailable
	}
	return func() {
		_ = releaseScript.Run(context.Background(), l.rc, []string{fullKey}, token).Err()
	}, nil
}

func (l *RedisLocker) key(key string) string {
	if l.prefix == "" {
		return key
	}
	return strings.TrimSuffix(l.prefix, ":") + ":" + key
}

// NoopLocker always grants the lock. Used when no Redis is configured.
type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

func campaignLockKey(campaignID uint) string {
	return fmt.Sprintf("campaign:execute:%d", campaignID)
}

const queueProcessorLeaseKey = "notification_queue:processor"
