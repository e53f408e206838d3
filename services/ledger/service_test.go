package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"progression-engine/pkg/db/option"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/repository"
	"progression-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn     func(tx *gorm.DB) repository.Repository[T]
	findFn        func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn      func(ctx context.Context, resource *T) error
	updateFn      func(ctx context.Context, resourceID string, resource any) error
	batchCreateFn func(ctx context.Context, resources []*T) error
	batchUpdateFn func(ctx context.Context, resources []*T) error
	countFn       func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if m.batchCreateFn != nil {
		return m.batchCreateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if m.batchUpdateFn != nil {
		return m.batchUpdateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

func newService(t *testing.T) (*Service, *gorm.DB) {
	db := testutil.NewTestDB(t, &Entry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node}), db
}

func TestNewService(t *testing.T) {
	svc, _ := newService(t)
	require.NotNil(t, svc.ledger)
	require.NotNil(t, svc.node)
}

func TestRecordFirstWriterWins(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := MilestoneKey("member", "RM", 25)

	granted, err := svc.Record(ctx, "u1", KindMasteryMilestone, key, map[string]any{"milestone": 25})
	require.NoError(t, err)
	require.True(t, granted)

	granted, err = svc.Record(ctx, "u1", KindMasteryMilestone, key, nil)
	require.NoError(t, err)
	require.False(t, granted)

	// same key for another user is independent
	granted, err = svc.Record(ctx, "u2", KindMasteryMilestone, key, nil)
	require.NoError(t, err)
	require.True(t, granted)

	ok, err := svc.Exists(ctx, "u1", key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecordConcurrentExactlyOnce(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := LevelKey("era", "Wings", 7)

	var wins atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted, err := svc.Record(ctx, "u1", KindMasteryLevel, key, nil)
			if granted {
				wins.Add(1)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), wins.Load())
}

func TestAuditDetectsTampering(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, "u1", KindMasteryLevel, LevelKey("member", "Jin", 1), nil)
	require.NoError(t, err)
	_, err = svc.Record(ctx, "u1", KindMasteryLevel, LevelKey("member", "Jin", 2), nil)
	require.NoError(t, err)

	tampered, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, tampered)

	require.NoError(t, db.Model(&Entry{}).
		Where("reward_key = ?", LevelKey("member", "Jin", 2)).
		Update("reward_key", LevelKey("member", "Jin", 3)).Error)

	tampered, err = svc.Audit(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tampered, 1)
	require.Equal(t, LevelKey("member", "Jin", 3), tampered[0].RewardKey)
}

func TestAuditDetectsMetadataTampering(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, "u1", KindScoringEvent, EventKey("evt-1"), map[string]any{"raw_xp": 40, "quiz_id": "q1"})
	require.NoError(t, err)

	tampered, err := svc.Audit(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, tampered)

	require.NoError(t, db.Model(&Entry{}).
		Where("reward_key = ?", EventKey("evt-1")).
		Update("metadata", datatypes.JSON(`{"raw_xp":4000,"quiz_id":"q1"}`)).Error)

	tampered, err = svc.Audit(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tampered, 1)
}

func TestEntryHashIgnoresMetadataFormatting(t *testing.T) {
	e := NewEntry(EntryParams{
		EntryID:   "1",
		UserID:    "u1",
		Kind:      KindScoringEvent,
		RewardKey: EventKey("evt-1"),
		Metadata:  datatypes.JSON(`{"quiz_id":"q1","raw_xp":40}`),
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	e.Metadata = datatypes.JSON(`{"raw_xp": 40, "quiz_id": "q1"}`)
	require.True(t, e.Verify())

	e.Metadata = datatypes.JSON(`{"raw_xp": 41, "quiz_id": "q1"}`)
	require.False(t, e.Verify())
}

func TestEntryVerify(t *testing.T) {
	e := NewEntry(EntryParams{
		EntryID:   "1",
		UserID:    "u1",
		Kind:      KindQuestPeriodComplete,
		RewardKey: PeriodCompletionKey("daily", "2024-03-01"),
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, e.Verify())

	e.UserID = "u2"
	require.False(t, e.Verify())
}

func TestListDatastoreFailure(t *testing.T) {
	svc := &Service{
		ledger: &repoMock[Entry]{
			findFn: func(ctx context.Context, _ *Entry, opts ...option.QueryOption) ([]*Entry, error) {
				return nil, errors.New("connection reset")
			},
		},
	}

	_, err := svc.List(context.Background(), "u1", KindMasteryLevel)
	require.Error(t, err)
	require.True(t, errutil.IsRetryable(err))
	require.ErrorIs(t, err, errutil.ErrDatastoreUnavailable)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "mastery:member:OT7:milestone:100", MilestoneKey("member", "OT7", 100))
	require.Equal(t, "mastery:era:Wings:level:3", LevelKey("era", "Wings", 3))
	require.Equal(t, "quest:weekly:weekly-2024-09:complete", PeriodCompletionKey("weekly", "weekly-2024-09"))
}
