package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"progression-engine/pkg/db/pagination"
	"progression-engine/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return nil, nil
}

type fakeResolver struct {
	url string
	err error
}

func (f fakeResolver) Resolve(ctx context.Context, assetID string) (string, error) {
	return f.url + assetID, f.err
}

func newService(t *testing.T, enq *fakeEnqueuer) *Service {
	db := testutil.NewTestDB(t, &Item{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node, Enqueuer: enq})
}

func TestCreateKeepsSource(t *testing.T) {
	svc := newService(t, &fakeEnqueuer{})
	ctx := context.Background()

	item, err := svc.Create(ctx, "u1",
		CardRef{CardID: "c1", AssetID: "a1", Rarity: "rare"},
		QuestSource{QuestCode: "daily_stream_3", PeriodKey: "2024-03-01", Streaming: true},
	)
	require.NoError(t, err)
	require.Equal(t, SourceQuestStreaming, item.SourceType)

	stored, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	src, err := stored.Source()
	require.NoError(t, err)
	require.Equal(t, QuestSource{QuestCode: "daily_stream_3", PeriodKey: "2024-03-01", Streaming: true}, src)

	item, err = svc.Create(ctx, "u1", CardRef{CardID: "c2"}, MasteryLevelSource{Kind: "era", Key: "Wings", Level: 4})
	require.NoError(t, err)
	src, err = item.Source()
	require.NoError(t, err)
	require.Equal(t, MasteryLevelSource{Kind: "era", Key: "Wings", Level: 4}, src)
}

func TestCreateRejectsNilSource(t *testing.T) {
	svc := newService(t, &fakeEnqueuer{})
	_, err := svc.Create(context.Background(), "u1", CardRef{CardID: "c1"}, nil)
	require.Error(t, err)
}

func TestDecodeUnknownSource(t *testing.T) {
	_, err := DecodeSource("gacha", []byte(`{}`))
	require.Error(t, err)
}

func TestListPages(t *testing.T) {
	svc := newService(t, &fakeEnqueuer{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "u1", CardRef{CardID: "c"}, QuizSource{QuizID: "q", RawXP: 10})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "u2", CardRef{CardID: "c"}, QuizSource{QuizID: "q"})
	require.NoError(t, err)

	page, info, err := svc.List(ctx, "u1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	rest, info, err := svc.List(ctx, "u1", pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, info.HasMore)

	n, err := svc.Count(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestScheduleAndResolveAsset(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc := newService(t, enq)
	ctx := context.Background()

	item, err := svc.Create(ctx, "u1", CardRef{CardID: "c1", AssetID: "jk-wings-01"}, QuizSource{QuizID: "q1"})
	require.NoError(t, err)

	svc.ScheduleAssetResolution(ctx, item, nil)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TypeResolveAsset, enq.tasks[0].Type())

	var payload resolveAssetPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, item.ID, payload.ItemID)

	handler := NewTask(TaskParams{Service: svc, Resolver: fakeResolver{url: "https://cdn.test/"}})
	require.NoError(t, handler.HandleResolveAsset(ctx, enq.tasks[0]))

	stored, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/jk-wings-01", stored.ImageURL)
}

func TestScheduleEnqueueFailureIsSwallowed(t *testing.T) {
	svc := newService(t, &fakeEnqueuer{err: errors.New("redis down")})
	svc.ScheduleAssetResolution(context.Background(), &Item{ID: "1"})
}

func TestResolveMissingItemIsRetried(t *testing.T) {
	svc := newService(t, &fakeEnqueuer{})
	handler := NewTask(TaskParams{Service: svc, Resolver: fakeResolver{}})

	payload, _ := json.Marshal(resolveAssetPayload{ItemID: "nope"})
	err := handler.HandleResolveAsset(context.Background(), asynq.NewTask(TypeResolveAsset, payload))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	err = handler.HandleResolveAsset(context.Background(), asynq.NewTask(TypeResolveAsset, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTemplateResolver(t *testing.T) {
	r := TemplateResolver{Template: "https://cdn.example.com/cards/%s.webp"}
	u, err := r.Resolve(context.Background(), "rm love")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/cards/rm%20love.webp", u)

	_, err = r.Resolve(context.Background(), "")
	require.Error(t, err)
}

type fakePresigner struct {
	bucket, object string
	ttl            time.Duration
}

func (f *fakePresigner) PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, _ url.Values) (*url.URL, error) {
	f.bucket, f.object, f.ttl = bucket, object, expires
	return url.Parse("https://minio.test/" + bucket + "/" + object + "?X-Amz-Signature=abc")
}

func TestObjectResolver(t *testing.T) {
	p := &fakePresigner{}
	r := ObjectResolver{Client: p, Bucket: "cards", TTL: time.Hour}

	u, err := r.Resolve(context.Background(), "jk-golden-01")
	require.NoError(t, err)
	require.Equal(t, "https://minio.test/cards/jk-golden-01?X-Amz-Signature=abc", u)
	require.Equal(t, "cards", p.bucket)
	require.Equal(t, time.Hour, p.ttl)

	_, err = r.Resolve(context.Background(), "")
	require.Error(t, err)
}
