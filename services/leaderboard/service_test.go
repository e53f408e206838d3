package leaderboard

import (
	"context"
	"testing"

	"progression-engine/pkg/errutil"
	"progression-engine/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestSubmitKeepsMaximum(t *testing.T) {
	svc := NewService(ServiceParams{DB: testutil.NewTestDB(t, &Entry{})})
	ctx := context.Background()

	e, err := svc.Submit(ctx, Submission{PeriodKey: "2026-10-16", UserID: "u1", Score: 80, DisplayName: "Ari"})
	require.NoError(t, err)
	require.Equal(t, int64(80), e.Score)

	e, err = svc.Submit(ctx, Submission{PeriodKey: "2026-10-16", UserID: "u1", Score: 40, DisplayName: "Ari B", AvatarURL: "https://a/1.png"})
	require.NoError(t, err)
	require.Equal(t, int64(80), e.Score)
	require.Equal(t, "Ari B", e.DisplayName)
	require.Equal(t, "https://a/1.png", e.AvatarURL)

	e, err = svc.Submit(ctx, Submission{PeriodKey: "2026-10-16", UserID: "u1", Score: 95})
	require.NoError(t, err)
	require.Equal(t, int64(95), e.Score)

	_, err = svc.Submit(ctx, Submission{PeriodKey: "2026-10-16", UserID: "u1", Score: -1})
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))
}

func TestTopAndRank(t *testing.T) {
	svc := NewService(ServiceParams{DB: testutil.NewTestDB(t, &Entry{})})
	ctx := context.Background()

	for _, s := range []Submission{
		{PeriodKey: "p1", UserID: "a", Score: 10},
		{PeriodKey: "p1", UserID: "b", Score: 30},
		{PeriodKey: "p1", UserID: "c", Score: 20},
		{PeriodKey: "p2", UserID: "a", Score: 99},
	} {
		_, err := svc.Submit(ctx, s)
		require.NoError(t, err)
	}

	top, err := svc.Top(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "b", top[0].UserID)
	require.Equal(t, int64(1), top[0].Rank)
	require.Equal(t, "c", top[1].UserID)

	r, err := svc.Get(ctx, "p1", "a")
	require.NoError(t, err)
	require.Equal(t, int64(3), r.Rank)

	_, err = svc.Get(ctx, "p1", "zz")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}
