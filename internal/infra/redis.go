package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectRedis создает клиента и ждет доступности Redis с повторами.
func ConnectRedis(ctx context.Context, cfg RedisConfig, attempts uint, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if attempts == 0 {
		attempts = 1
	}
	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("redis unreachable, retrying", zap.String("addr", cfg.Addr), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	).Do(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: %s unreachable: %w", cfg.Addr, err)
	}
	return rdb, nil
}
