package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const publishKeyPrefix = "packhub:ratelimit:publish:"

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(NewPublishLimiter),
)

// NewRedisClient returns nil when no Redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RateLimit.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, continuing", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// NewPublishLimiter picks the Redis bucket when a client exists and an
// in-process bucket otherwise.
func NewPublishLimiter(cfg config.Config, client *redis.Client, clk clock.Clock, log *zap.Logger) (Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return AllowAll{}, nil
	}
	if client != nil {
		log.Info("publish rate limit backed by redis")
		return NewRedisLimiter(NewTokenBucket(client), publishKeyPrefix, cfg.RateLimit.PublishRate, cfg.RateLimit.PublishBurst), nil
	}
	return NewMemoryLimiter(clk, cfg.RateLimit.PublishRate, cfg.RateLimit.PublishBurst)
}
