package quest

import (
	"context"
	"regexp"
	"testing"
	"time"

	"progression-engine/pkg/errutil"
	"progression-engine/pkg/period"
	"progression-engine/services/badge"
	"progression-engine/services/balance"
	"progression-engine/services/droptable"
	"progression-engine/services/inventory"
	"progression-engine/services/ledger"
	"progression-engine/services/streak"
	"progression-engine/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type zeroRand struct{}

func (zeroRand) Float64() float64 { return 0 }

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

const today = "2026-10-16"

type fixture struct {
	svc     *Service
	defs    *DefinitionStore
	ledger  *ledger.Service
	balance *balance.Service
	badges  *badge.Service
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t,
		&Definition{}, &Progress{}, &ledger.Entry{}, &balance.Wallet{},
		&badge.Grant{}, &inventory.Item{}, &droptable.PityCounter{},
	)
	node := testutil.NewNode(t, 3)
	cfg := testutil.NewConfig()

	f := &fixture{defs: NewDefinitionStore(db)}
	f.ledger = ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	f.balance = balance.NewService(balance.ServiceParams{DB: db})
	f.badges = badge.NewService(badge.ServiceParams{DB: db, Node: node})
	inv := inventory.NewService(inventory.ServiceParams{DB: db, Node: node})
	drops := droptable.NewService(droptable.ServiceParams{
		Config:    cfg,
		Catalog:   droptable.StaticCatalog{{CardID: "c1", Member: "Jimin", Rarity: droptable.Common, AssetID: "c1"}},
		Pity:      droptable.NewDBPityStore(db),
		Inventory: inv,
		Rand:      zeroRand{},
	})
	streaks := streak.NewService(streak.ServiceParams{DB: db, Balance: f.balance, Badges: f.badges, Drops: drops})

	clock := period.Clock{Location: time.UTC, Now: func() time.Time { return now }}
	f.svc = NewService(ServiceParams{
		DB:      db,
		Config:  cfg,
		Clock:   &clock,
		Defs:    f.defs,
		Ledger:  f.ledger,
		Balance: f.balance,
		Badges:  f.badges,
		Drops:   drops,
		Streak:  streaks,
	})

	require.NoError(t, f.defs.Upsert(context.Background(),
		&Definition{Code: "daily_quiz", Period: period.Daily, GoalType: "quiz_correct", GoalValue: 10,
			RewardDust: 50, RewardXP: 20, RewardTicket: true, RewardBadge: "first_quiz", Active: true},
		&Definition{Code: "daily_stream", Period: period.Daily, GoalType: "stream_minutes", GoalValue: 30,
			RewardDust: 30, RewardTicket: true, Active: true},
		&Definition{Code: "weekly_spotify", Period: period.Weekly, GoalType: "stream_minutes", GoalValue: 300,
			RewardDust: 500, Condition: `attrs.source == "spotify"`, Active: true},
		&Definition{Code: "retired", Period: period.Daily, GoalType: "quiz_correct", GoalValue: 1, Active: false},
	))
	return f
}

func (f *fixture) advance(t *testing.T, goal string, amount int64, attrs map[string]any) []*Progress {
	out, err := f.svc.AdvanceQuest(context.Background(), AdvanceRequest{
		UserID: "u1", GoalType: goal, Amount: amount, Attributes: attrs,
	})
	require.NoError(t, err)
	return out
}

func TestAdvanceQuestClampsAtGoal(t *testing.T) {
	f := newFixture(t)

	out := f.advance(t, "quiz_correct", 7, nil)
	require.Len(t, out, 1)
	require.Equal(t, today, out[0].PeriodKey)
	require.Equal(t, int64(7), out[0].Progress)
	require.False(t, out[0].Completed)

	out = f.advance(t, "quiz_correct", 7, nil)
	require.Equal(t, int64(10), out[0].Progress)
	require.True(t, out[0].Completed)

	out = f.advance(t, "quiz_correct", 50, nil)
	require.Equal(t, int64(10), out[0].Progress)
}

// Postgres infers a CASE whose branches are all bind parameters as text and
// refuses to assign it to the boolean column.
func TestAdvanceSQLKeepsCompletedBoolean(t *testing.T) {
	untyped := regexp.MustCompile(`THEN \?\s+ELSE \?`)
	require.False(t, untyped.MatchString(advanceSQL), advanceSQL)
	require.Contains(t, advanceSQL, "completed = (progress + ? >= goal_value)")
}

func TestAdvanceQuestCompletesOnExactGoal(t *testing.T) {
	f := newFixture(t)

	out := f.advance(t, "quiz_correct", 9, nil)
	require.False(t, out[0].Completed)

	out = f.advance(t, "quiz_correct", 1, nil)
	require.Equal(t, int64(10), out[0].Progress)
	require.True(t, out[0].Completed)
}

func TestAdvanceQuestEvaluatesConditions(t *testing.T) {
	f := newFixture(t)

	out := f.advance(t, "stream_minutes", 40, map[string]any{"source": "lastfm"})
	require.Len(t, out, 1)
	require.Equal(t, "daily_stream", out[0].QuestCode)
	require.Equal(t, int64(30), out[0].Progress)

	out = f.advance(t, "stream_minutes", 40, map[string]any{"source": "spotify"})
	require.Len(t, out, 2)
	require.Equal(t, "weekly_spotify", out[1].QuestCode)
	require.Equal(t, period.WeeklyKey(now), out[1].PeriodKey)
	require.Equal(t, int64(40), out[1].Progress)
}

func TestAdvanceQuestAmountValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdvanceQuest(context.Background(), AdvanceRequest{UserID: "u1", GoalType: "quiz_correct", Amount: -1})
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))

	out := f.advance(t, "quiz_correct", 0, nil)
	require.Empty(t, out)
}

func TestUpsertRejectsInvalidCondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, cond := range []string{`attrs.source ==`, `amount + 1`, `unknown_var > 2`} {
		err := f.defs.Upsert(ctx, &Definition{Code: "broken", Period: period.Daily, GoalType: "quiz_correct",
			GoalValue: 1, Condition: cond, Active: true})
		require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err), cond)
	}

	require.NoError(t, f.defs.Upsert(ctx, &Definition{Code: "gated", Period: period.Daily, GoalType: "quiz_correct",
		GoalValue: 1, Condition: `amount >= 2 && goal_type == "quiz_correct"`, Active: true}))
	out := f.advance(t, "quiz_correct", 2, nil)
	require.Len(t, out, 2)
}

func TestClaimQuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ClaimQuest(ctx, "u1", "daily_quiz", today)
	require.True(t, errutil.IsNotCompleted(err))

	f.advance(t, "quiz_correct", 3, nil)
	_, err = f.svc.ClaimQuest(ctx, "u1", "daily_quiz", today)
	require.True(t, errutil.IsNotCompleted(err))

	f.advance(t, "quiz_correct", 10, nil)
	res, err := f.svc.ClaimQuest(ctx, "u1", "daily_quiz", today)
	require.NoError(t, err)
	require.Equal(t, []string{"first_quiz"}, res.Badges)
	require.NotNil(t, res.Item)
	require.Equal(t, inventory.SourceQuestQuiz, res.Item.SourceType)
	require.False(t, res.PeriodComplete)

	w, err := f.balance.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(50), w.Dust)
	require.Equal(t, int64(20), w.XP)

	_, err = f.svc.ClaimQuest(ctx, "u1", "daily_quiz", today)
	require.True(t, errutil.IsAlreadyClaimed(err))

	w, err = f.balance.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(50), w.Dust)

	_, err = f.svc.ClaimQuest(ctx, "u1", "nope", today)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	_, err = f.svc.ClaimQuest(ctx, "u1", "daily_quiz", "weekly-2026-42")
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))
}

func TestClaimingEveryQuestCompletesPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.advance(t, "quiz_correct", 10, nil)
	f.advance(t, "stream_minutes", 30, map[string]any{"source": "lastfm"})

	_, err := f.svc.ClaimQuest(ctx, "u1", "daily_quiz", today)
	require.NoError(t, err)

	res, err := f.svc.ClaimQuest(ctx, "u1", "daily_stream", today)
	require.NoError(t, err)
	require.True(t, res.PeriodComplete)
	require.Equal(t, inventory.SourceQuestStreaming, res.Item.SourceType)
	require.NotNil(t, res.Streak)
	require.Equal(t, int64(1), res.Streak.Count)
	require.Contains(t, res.Badges, "streak_daily_1")

	has, err := f.badges.Has(ctx, "u1", PeriodBadge(period.Daily))
	require.NoError(t, err)
	require.True(t, has)

	entries, err := f.ledger.List(ctx, "u1", ledger.KindQuestPeriodComplete)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Re-claiming reruns the period step without granting anything twice.
	_, err = f.svc.ClaimQuest(ctx, "u1", "daily_stream", today)
	require.True(t, errutil.IsAlreadyClaimed(err))

	entries, err = f.ledger.List(ctx, "u1", ledger.KindQuestPeriodComplete)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	w, err := f.balance.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), w.StreakDailyCount)
	require.Equal(t, int64(80), w.Dust)
}

func TestGetAndListProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.GetProgress(ctx, "u1", "daily_stream", today)
	require.NoError(t, err)
	require.Equal(t, int64(0), p.Progress)
	require.Equal(t, int64(30), p.GoalValue)

	f.advance(t, "quiz_correct", 4, nil)

	list, err := f.svc.ListProgress(ctx, "u1", period.Daily, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "daily_quiz", list[0].QuestCode)
	require.Equal(t, int64(4), list[0].Progress)
	require.Equal(t, "daily_stream", list[1].QuestCode)
	require.Equal(t, int64(0), list[1].Progress)

	_, err = f.svc.GetProgress(ctx, "u1", "nope", today)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}
