package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"progression-engine/pkg/config"
	"progression-engine/pkg/db"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/redis"
	"progression-engine/services/droptable"
	"progression-engine/services/quest"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type options struct {
	cards     string
	quests    string
	overwrite bool
}

// catalogFile is the YAML layout read by catalogsync:
//
//	cards:
//	  - card_id: rm-wings-01
//	    member: RM
//	    era: Wings
//	    asset_id: rm-wings-01
//	quests:
//	  - code: daily_quiz
//	    period: daily
//	    goal_type: quiz_correct
//	    goal_value: 10
//	    active: true
type catalogFile struct {
	Cards  []droptable.Card    `mapstructure:"cards"`
	Quests []*quest.Definition `mapstructure:"quests"`
}

func main() {
	var opts options
	flag.StringVar(&opts.cards, "cards", "", "YAML file with the card catalog")
	flag.StringVar(&opts.quests, "quests", "", "YAML file with quest definitions")
	flag.BoolVar(&opts.overwrite, "overwrite-rarity", false, "recompute rarity for cards that already carry one")
	flag.Parse()

	if opts.cards == "" && opts.quests == "" {
		log.Fatal("nothing to sync: pass -cards and/or -quests")
	}

	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		fx.Supply(opts),
		fx.Invoke(run),
		fx.NopLogger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("catalogsync: %v", err)
	}
	_ = app.Stop(ctx)
}

func run(conn *gorm.DB, rdb *goredis.Client, zapLog *zap.Logger, opts options) error {
	ctx := context.Background()

	if err := db.Migrate(conn, &droptable.Card{}, &quest.Definition{}); err != nil {
		return err
	}

	if opts.cards != "" {
		file, err := read(opts.cards)
		if err != nil {
			return err
		}
		cards := droptable.AssignRarities(file.Cards, droptable.BaseWeights, opts.overwrite)
		n, err := droptable.NewStoreCatalog(conn, 0).WithVersionSignal(rdb).Upsert(ctx, cards)
		if err != nil {
			return err
		}
		zapLog.Info("card catalog synced", zap.String("file", opts.cards), zap.Int("cards", len(cards)), zap.Int64("rows", n))
	}

	if opts.quests != "" {
		file, err := read(opts.quests)
		if err != nil {
			return err
		}
		if err := quest.NewDefinitionStore(conn).Upsert(ctx, file.Quests...); err != nil {
			return err
		}
		zapLog.Info("quest definitions synced", zap.String("file", opts.quests), zap.Int("quests", len(file.Quests)))
	}
	return nil
}

func read(path string) (*catalogFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out catalogFile
	if err := v.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &out, nil
}
