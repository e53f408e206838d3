package task

import (
	"context"
	"fmt"
	"time"

	"progression-engine/pkg/config"
	"progression-engine/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Queue names. Scored events feed the ledger and go first; asset
// resolution is cosmetic and runs last.
const (
	QueueScoring = "scoring"
	QueueDefault = "default"
	QueueLow     = "low"
)

var queueWeights = map[string]int{
	QueueScoring: 6,
	QueueDefault: 3,
	QueueLow:     1,
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

var Client = fx.Module("asynq:client",
	fx.Provide(registerClient, NewEnqueuer),
)

func registerClient(lc fx.Lifecycle, cfg *config.Config) (*asynq.Client, error) {
	client := asynq.NewClient(redisOpt(cfg))
	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("asynq client: %w", err)
	}
	zap.L().Info("[Asynq] Connected to Asynq", zap.String("addr", cfg.Redis.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

var Server = fx.Module("asynq:server",
	fx.Provide(registerServerMux),
	fx.Invoke(registerAsynqServer),
)

func registerServerMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(observe)
	return mux
}

// observe logs and counts every handled task.
func observe(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)

		result := "ok"
		if err != nil {
			result = "error"
		}
		processed.WithLabelValues(t.Type(), result).Inc()

		fields := []zap.Field{zap.String("task_type", t.Type()), zap.Duration("elapsed", time.Since(start))}
		if id, ok := asynq.GetTaskID(ctx); ok {
			fields = append(fields, zap.String("task_id", id))
		}
		if n, ok := asynq.GetRetryCount(ctx); ok && n > 0 {
			fields = append(fields, zap.Int("retry", n))
		}
		if err != nil {
			logger.Ctx(ctx).Warn("task failed", append(fields, zap.Error(err))...)
		} else {
			logger.Ctx(ctx).Debug("task done", fields...)
		}
		return err
	})
}

func registerAsynqServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux) {
	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency:     cfg.Worker.Concurrency,
		Queues:          queueWeights,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			if retried >= maxRetry {
				exhausted.WithLabelValues(task.Type()).Inc()
				zap.L().Error("asynq task permanently failed", zap.String("task_type", task.Type()), zap.Error(err))
			}
		}),
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := server.Start(mux); err != nil {
				return fmt.Errorf("start asynq server: %w", err)
			}
			zap.L().Info("[Asynq] Asynq server started",
				zap.String("addr", cfg.Redis.Addr),
				zap.Int("concurrency", cfg.Worker.Concurrency),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}
