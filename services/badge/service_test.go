package badge

import (
	"context"
	"testing"

	"progression-engine/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newService(t *testing.T) *Service {
	db := testutil.NewTestDB(t, &Grant{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node})
}

func TestGrantOnce(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	ok, err := svc.Grant(ctx, "u1", "streak_daily_1", SourceStreak)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Grant(ctx, "u1", "streak_daily_1", SourceStreak)
	require.NoError(t, err)
	require.False(t, ok)

	has, err := svc.Has(ctx, "u1", "streak_daily_1")
	require.NoError(t, err)
	require.True(t, has)

	has, err = svc.Has(ctx, "u2", "streak_daily_1")
	require.NoError(t, err)
	require.False(t, has)
}

func TestGrantAllReturnsNewOnly(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, "u1", "mastery_member_rm_5", SourceMastery)
	require.NoError(t, err)

	fresh, err := svc.GrantAll(ctx, "u1", SourceMastery, "mastery_member_rm_5", "mastery_member_rm_10")
	require.NoError(t, err)
	require.Equal(t, []string{"mastery_member_rm_10"}, fresh)

	grants, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, grants, 2)
}

func TestGrantRequiresCode(t *testing.T) {
	svc := newService(t)
	_, err := svc.Grant(context.Background(), "u1", "", SourceQuest)
	require.Error(t, err)
}
