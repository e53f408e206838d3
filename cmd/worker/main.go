package main

import (
	"log"

	"progression-engine/pkg/config"
	"progression-engine/pkg/db"
	"progression-engine/pkg/health"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/minio"
	"progression-engine/pkg/otelcol"
	"progression-engine/pkg/profiling"
	"progression-engine/pkg/redis"
	"progression-engine/pkg/server"
	"progression-engine/pkg/task"
	"progression-engine/services/badge"
	"progression-engine/services/balance"
	"progression-engine/services/droptable"
	"progression-engine/services/inventory"
	"progression-engine/services/leaderboard"
	"progression-engine/services/ledger"
	"progression-engine/services/mastery"
	"progression-engine/services/quest"
	"progression-engine/services/scoring"
	"progression-engine/services/streak"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		minio.Client,
		otelcol.Module,
		profiling.Module,
		health.Module,
		fx.Provide(provideSnowflakeNode),
		fx.Invoke(
			migrate,
			db.Otel,
			db.Metric,
			registerCollectors,
		),
		balance.Module,
		ledger.Module,
		badge.Module,
		inventory.Module,
		inventory.Worker,
		droptable.Module,
		mastery.Module,
		streak.Module,
		quest.Module,
		leaderboard.Module,
		scoring.Module,
		scoring.TaskModule,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})

func provideSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func migrate(conn *gorm.DB) error {
	return db.Migrate(conn,
		&ledger.Entry{},
		&balance.Wallet{},
		&badge.Grant{},
		&inventory.Item{},
		&droptable.Card{},
		&droptable.PityCounter{},
		&mastery.Track{},
		&quest.Definition{},
		&quest.Progress{},
		&leaderboard.Entry{},
	)
}

func registerCollectors() {
	groups := [][]prometheus.Collector{
		task.Collectors(),
		balance.Collectors(),
		ledger.Collectors(),
		badge.Collectors(),
		inventory.Collectors(),
		droptable.Collectors(),
		mastery.Collectors(),
		streak.Collectors(),
		quest.Collectors(),
		leaderboard.Collectors(),
		scoring.Collectors(),
	}
	for _, cs := range groups {
		prometheus.MustRegister(cs...)
	}
}
