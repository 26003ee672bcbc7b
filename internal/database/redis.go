package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/config"
)

// RedisClient wraps a Redis client with logging and error tracking. The
// router uses it for distributed rate limiting and health reporting.
type RedisClient struct {
	Client *redis.Client
	logger *zap.Logger
}

// NewRedisConnection creates a new Redis connection and verifies it with a
// ping before returning.
func NewRedisConnection(cfg config.RedisConfig, logger *zap.Logger) (*RedisClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	rdb.AddHook(RedisSentryHook{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis", zap.String("addr", cfg.Addr()))

	return &RedisClient{
		Client: rdb,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() {
	if r.Client != nil {
		if err := r.Client.Close(); err != nil && r.logger != nil {
			r.logger.Error("Error closing Redis client", zap.Error(err))
		}
		if r.logger != nil {
			r.logger.Info("Redis connection closed")
		}
	}
}

// HealthCheck verifies the Redis connection.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return r.Client.Ping(ctx).Err()
}

// Set stores a key-value pair with expiration.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return r.Client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value by key.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	return r.Client.Get(ctx, key).Result()
}

// Delete removes one or more keys.
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return r.Client.Del(ctx, keys...).Err()
}

// Exists checks if keys exist.
func (r *RedisClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	if r.Client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	return r.Client.Exists(ctx, keys...).Result()
}

// RedisSentryHook reports command and dial failures to Sentry. Key misses
// (redis.Nil) are not errors.
type RedisSentryHook struct{}

func (RedisSentryHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			sentry.CaptureException(err)
		}
		return conn, err
	}
}

func (RedisSentryHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			sentry.CaptureException(err)
		}
		return err
	}
}

func (RedisSentryHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			sentry.CaptureException(err)
		}
		return err
	}
}
