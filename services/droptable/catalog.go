package droptable

import (
	"context"
	"strings"
	"sync"
	"time"

	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Card struct {
	CardID    string    `gorm:"column:card_id;primaryKey;size:64" mapstructure:"card_id"`
	Member    string    `gorm:"column:member;size:64;index" mapstructure:"member"`
	Era       string    `gorm:"column:era;size:128;index" mapstructure:"era"`
	Set       string    `gorm:"column:set_name;size:128" mapstructure:"set"`
	Rarity    Rarity    `gorm:"column:rarity;size:16;index" mapstructure:"rarity"`
	AssetID   string    `gorm:"column:asset_id;size:128" mapstructure:"asset_id"`
	CreatedAt time.Time `gorm:"column:created_at" mapstructure:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at" mapstructure:"-"`
}

func (Card) TableName() string { return "cards" }

// Filter narrows the pool. Empty fields match everything.
type Filter struct {
	Member string
	Era    string
	Set    string
}

func (f Filter) Match(c Card) bool {
	return matchField(f.Member, c.Member) && matchField(f.Era, c.Era) && matchField(f.Set, c.Set)
}

func matchField(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}

// Catalog supplies the read-only card pool. Callers must not modify the
// returned slice.
type Catalog interface {
	Cards(ctx context.Context) ([]Card, error)
}

type StaticCatalog []Card

func (c StaticCatalog) Cards(ctx context.Context) ([]Card, error) {
	return c, nil
}

// StoreCatalog reads the cards table and keeps a snapshot for ttl. With a
// Redis client the snapshot is also tagged with the shared catalog version,
// so an Upsert in one process drops the snapshot in every other.
type StoreCatalog struct {
	db  *gorm.DB
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	cards    []Card
	loadedAt time.Time
	version  int64
	group    singleflight.Group
}

func NewStoreCatalog(db *gorm.DB, ttl time.Duration) *StoreCatalog {
	return &StoreCatalog{db: db, ttl: ttl, now: time.Now}
}

// WithVersionSignal shares invalidation through rdb. Call before first use.
func (c *StoreCatalog) WithVersionSignal(rdb *redis.Client) *StoreCatalog {
	c.rdb = rdb
	return c
}

type storeCatalogParams struct {
	fx.In
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
}

func provideStoreCatalog(p storeCatalogParams) *StoreCatalog {
	c := NewStoreCatalog(p.DB, p.Config.Progression.CatalogCacheTTL)
	if p.Redis != nil {
		c.WithVersionSignal(p.Redis)
	}
	return c
}

// sharedVersion reads the cross-process catalog version. Redis being
// unreachable degrades to ttl-only expiry.
func (c *StoreCatalog) sharedVersion(ctx context.Context) (int64, bool) {
	if c.rdb == nil {
		return 0, false
	}
	v, err := c.rdb.Get(ctx, rediskey.BuildCatalogVersionKey()).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		zap.L().Warn("catalog version unavailable", zap.Error(err))
		return 0, false
	}
	return v, true
}

func (c *StoreCatalog) snapshot(version int64, shared bool) ([]Card, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loadedAt.IsZero() || (c.ttl > 0 && c.now().Sub(c.loadedAt) > c.ttl) {
		return nil, false
	}
	if shared && version != c.version {
		return nil, false
	}
	return c.cards, true
}

func (c *StoreCatalog) Cards(ctx context.Context) ([]Card, error) {
	version, shared := c.sharedVersion(ctx)
	if cards, ok := c.snapshot(version, shared); ok {
		catalogCache.WithLabelValues("hit").Inc()
		return cards, nil
	}
	catalogCache.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do("cards", func() (any, error) {
		var cards []Card
		if err := c.db.WithContext(ctx).Order("card_id").Find(&cards).Error; err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cards = cards
		c.loadedAt = c.now()
		c.version = version
		c.mu.Unlock()
		zap.L().Debug("card catalog loaded", zap.Int("cards", len(cards)))
		return cards, nil
	})
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	return v.([]Card), nil
}

func (c *StoreCatalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards = nil
	c.loadedAt = time.Time{}
}

// Upsert writes cards keyed by card_id and drops the snapshot here and,
// through the shared version, in other processes.
func (c *StoreCatalog) Upsert(ctx context.Context, cards []Card) (int64, error) {
	if len(cards) == 0 {
		return 0, nil
	}
	res := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"member", "era", "set_name", "rarity", "asset_id", "updated_at"}),
		}).
		CreateInBatches(cards, 200)
	if res.Error != nil {
		return 0, errutil.Datastore(res.Error)
	}
	c.Invalidate()
	if c.rdb != nil {
		if err := c.rdb.Incr(ctx, rediskey.BuildCatalogVersionKey()).Err(); err != nil {
			zap.L().Warn("failed to bump catalog version", zap.Error(err))
		}
	}
	return res.RowsAffected, nil
}
