package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/pkg/logger"
)

const keyPrefix = "squadkeeper:lease:"

// releaseScript deletes the key only when it still carries our token, so an
// expired lease re-acquired by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker holds a local lease first, then a Redis SET NX PX lease.
type RedisLocker struct {
	client       *redis.Client
	local        *LocalLocker
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisLocker creates a RedisLocker. ttl must exceed the longest swap.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{
		client:       client,
		local:        NewLocalLocker(),
		ttl:          ttl,
		pollInterval: 100 * time.Millisecond,
	}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	releaseLocal, err := l.local.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}

	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			releaseLocal()
			return nil, fmt.Errorf("acquire redis lease %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			releaseLocal()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// Release must succeed even when the caller's ctx is already done.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			logger.Warn("release redis lease failed; it will expire",
				zap.String("key", key),
				zap.Duration("ttl", l.ttl),
				zap.Error(err),
			)
		}
		releaseLocal()
	}, nil
}
