package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is the distributed tier behind the in-process cache. Backends are
// best-effort: failures degrade to local-only operation, never to request
// errors.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

const redisKeyPrefix = "aria:resp:"

// RedisBackend mirrors cache entries to Redis so multiple gateway instances
// share a response tier. Connection failures are logged once and the backend
// behaves as a permanent miss afterwards until the connection recovers.
type RedisBackend struct {
	client  *redis.Client
	logger  *slog.Logger
	logOnce sync.Once
}

// NewRedisBackend wraps an already-configured client.
func NewRedisBackend(client *redis.Client, logger *slog.Logger) *RedisBackend {
	return &RedisBackend{client: client, logger: logger}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool) {
	val, err := b.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		b.logFailure(err)
		return "", false
	}
	return val, true
}

func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := b.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		b.logFailure(err)
	}
}

// logFailure reports the first backend error at warn level; later errors are
// debug-only so a down Redis does not flood the log.
func (b *RedisBackend) logFailure(err error) {
	logged := false
	b.logOnce.Do(func() {
		b.logger.Warn("response cache backend unavailable, running local-only",
			slog.String("error", err.Error()),
		)
		logged = true
	})
	if !logged {
		b.logger.Debug("response cache backend error", slog.String("error", err.Error()))
	}
}
