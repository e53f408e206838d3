package redis

import (
	"context"
	"fmt"
	"time"

	"progression-engine/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	pingAttempts = 5
	pingTimeout  = 2 * time.Second
)

// Options maps the REDIS config section onto go-redis options.
func Options(c *config.Config) *redis.Options {
	return &redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	}
}

// New connects to Redis, retrying the first ping. The card catalog version
// and the asynq queues both live here, so a process that cannot reach Redis
// fails to start.
func New(lc fx.Lifecycle, c *config.Config) (*redis.Client, error) {
	zapLog := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
		zap.Int("pool_size", c.Redis.PoolSize),
	)

	rdb := redis.NewClient(Options(c))
	if err := ping(rdb, pingAttempts, 3*time.Second, zapLog); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	zapLog.Info("[Redis] Connected to Redis")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return rdb, nil
}

func ping(rdb *redis.Client, attempts int, wait time.Duration, zapLog *zap.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			return nil
		}
		if i < attempts-1 {
			zapLog.Warn("[Redis] Redis not ready, retrying", zap.Int("retry", i+1), zap.Duration("wait", wait), zap.Error(err))
			time.Sleep(wait)
		}
	}
	return fmt.Errorf("redis %s unreachable after %d attempts: %w", rdb.Options().Addr, attempts, err)
}
