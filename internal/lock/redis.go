package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	redisRetries    = 50
	redisRetryDelay = 50 * time.Millisecond
)

// RedisLocker is a Locker shared by every API replica. Keys expire after
// ttl so a crashed holder cannot wedge settlement.
type RedisLocker struct {
	cli    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

func NewRedisLocker(cli *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{cli: cli, ttl: ttl, prefix: "ajirinow:lock:", logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	token, err := l.tryLock(ctx, k)
	if err != nil {
		return nil, err
	}
	return func() {
		// release must not be cut short by a cancelled request context
		if err := l.unlock(context.Background(), k, token); err != nil {
			l.logger.Warn("redis unlock failed", "key", k, "error", err)
		}
	}, nil
}

func (l *RedisLocker) tryLock(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	for i := 0; i < redisRetries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, l.ttl).Result()
		if err == nil && ok {
			return token, nil
		}
		if err != nil {
			l.logger.Debug("redis setnx failed", "key", key, "error", err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(redisRetryDelay):
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotAcquired, key)
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
