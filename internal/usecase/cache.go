package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/skinai/internal/logging"
)

// Cache abstracts the Redis operations used by the use case to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// NopCache stores nothing; every Get is a miss.
type NopCache struct{}

func (NopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (NopCache) Get(context.Context, string) (string, error) { return "", redis.Nil }

// withCacheRetry retries fn on transient errors with exponential backoff.
// Other errors, including redis.Nil, end the loop immediately.
func (uc *PredictionUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	opLogger := logging.WithOperation(uc.logger, operation, requestID)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = uc.initialBackoff
	policy.MaxInterval = uc.maxBackoff
	policy.MaxElapsedTime = 0

	retries := uint64(0)
	if uc.retryAttempts > 1 {
		retries = uint64(uc.retryAttempts - 1)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !isTransientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("retry_in", wait))
	})
	if err != nil {
		return logging.NewOperationError(operation, requestID, err)
	}
	if attempt > 1 {
		opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt))
	}
	return nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
