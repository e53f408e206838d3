package streak

import (
	"context"
	"testing"

	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/period"
	"progression-engine/services/badge"
	"progression-engine/services/balance"
	"progression-engine/services/droptable"
	"progression-engine/services/inventory"
	"progression-engine/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type zeroRand struct{}

func (zeroRand) Float64() float64 { return 0 }

func newService(t *testing.T) (*Service, *gorm.DB) {
	db := testutil.NewTestDB(t, &balance.Wallet{}, &badge.Grant{}, &inventory.Item{}, &droptable.PityCounter{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Progression.PityThreshold = 10

	inv := inventory.NewService(inventory.ServiceParams{DB: db, Node: node})
	return NewService(ServiceParams{
		DB:      db,
		Balance: balance.NewService(balance.ServiceParams{DB: db}),
		Badges:  badge.NewService(badge.ServiceParams{DB: db, Node: node}),
		Drops: droptable.NewService(droptable.ServiceParams{
			Config:    cfg,
			Catalog:   droptable.StaticCatalog{{CardID: "c1", Member: "V", Rarity: droptable.Common, AssetID: "c1"}},
			Pity:      droptable.NewDBPityStore(db),
			Inventory: inv,
			Rand:      zeroRand{},
		}),
	}), db
}

func TestRecordSameKeyTwiceCountsOnce(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	u, err := svc.RecordPeriodCompletion(ctx, "u1", period.Daily, "2026-10-14")
	require.NoError(t, err)
	require.True(t, u.Changed)
	require.Equal(t, int64(1), u.Count)
	require.Equal(t, []string{"streak_daily_1"}, u.Badges)

	u, err = svc.RecordPeriodCompletion(ctx, "u1", period.Daily, "2026-10-14")
	require.NoError(t, err)
	require.False(t, u.Changed)
	require.Equal(t, int64(1), u.Count)
	require.Empty(t, u.Badges)
}

func TestRecordSuccessorAndGap(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	for _, key := range []string{"2026-10-14", "2026-10-15", "2026-10-16"} {
		_, err := svc.RecordPeriodCompletion(ctx, "u1", period.Daily, key)
		require.NoError(t, err)
	}
	var w balance.Wallet
	require.NoError(t, db.Where("user_id = ?", "u1").Take(&w).Error)
	require.Equal(t, int64(3), w.StreakDailyCount)
	require.Equal(t, "2026-10-16", w.LastDailyPeriodKey)

	// 2026-10-17 skipped.
	u, err := svc.RecordPeriodCompletion(ctx, "u1", period.Daily, "2026-10-18")
	require.NoError(t, err)
	require.True(t, u.Changed)
	require.Equal(t, int64(1), u.Count)

	// A late completion for an older day leaves the streak alone.
	u, err = svc.RecordPeriodCompletion(ctx, "u1", period.Daily, "2026-10-15")
	require.NoError(t, err)
	require.False(t, u.Changed)
	require.Equal(t, int64(1), u.Count)
}

func TestRecordWeeklyIsIndependentOfDaily(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	_, err := svc.RecordPeriodCompletion(ctx, "u1", period.Daily, "2026-10-14")
	require.NoError(t, err)
	_, err = svc.RecordPeriodCompletion(ctx, "u1", period.Weekly, "weekly-2026-41")
	require.NoError(t, err)
	u, err := svc.RecordPeriodCompletion(ctx, "u1", period.Weekly, "weekly-2026-42")
	require.NoError(t, err)
	require.Equal(t, int64(2), u.Count)
	require.Equal(t, []string{"streak_weekly_2"}, u.Badges)

	var w balance.Wallet
	require.NoError(t, db.Where("user_id = ?", "u1").Take(&w).Error)
	require.Equal(t, int64(1), w.StreakDailyCount)
	require.Equal(t, int64(2), w.StreakWeeklyCount)
}

func TestRecordMilestoneAwardsCard(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	require.NoError(t, db.Create(&balance.Wallet{
		UserID:             "u1",
		StreakDailyCount:   9,
		LastDailyPeriodKey: "2026-10-14",
	}).Error)

	u, err := svc.RecordPeriodCompletion(ctx, "u1", period.Daily, "2026-10-15")
	require.NoError(t, err)
	require.Equal(t, int64(10), u.Count)
	require.Equal(t, []string{"streak_daily_10", "streak_daily_milestone_10"}, u.Badges)
	require.NotNil(t, u.Item)
	require.Equal(t, "c1", u.Item.CardID)
	require.Equal(t, inventory.SourceStreakMilestone, u.Item.SourceType)
}

func TestRecordRejectsBadInput(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.RecordPeriodCompletion(context.Background(), "u1", period.Period("monthly"), "2026-10")
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))

	_, err = svc.RecordPeriodCompletion(context.Background(), "u1", period.Weekly, "2026-10-14")
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))
}

func TestRecordRejectsNonCanonicalWeek(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordPeriodCompletion(ctx, "u1", period.Weekly, "weekly-2026-5")
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))

	// the padded key still chains week to week
	_, err = svc.RecordPeriodCompletion(ctx, "u1", period.Weekly, "weekly-2026-05")
	require.NoError(t, err)
	u, err := svc.RecordPeriodCompletion(ctx, "u1", period.Weekly, "weekly-2026-06")
	require.NoError(t, err)
	require.True(t, u.Changed)
	require.Equal(t, int64(2), u.Count)
}
