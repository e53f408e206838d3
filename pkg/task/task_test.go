package task

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestObserveCountsResults(t *testing.T) {
	ok := observe(asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error { return nil }))
	bad := observe(asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error { return errors.New("boom") }))

	okBefore := testutil.ToFloat64(processed.WithLabelValues("test:observe", "ok"))
	errBefore := testutil.ToFloat64(processed.WithLabelValues("test:observe", "error"))

	require.NoError(t, ok.ProcessTask(context.Background(), asynq.NewTask("test:observe", nil)))
	require.EqualError(t, bad.ProcessTask(context.Background(), asynq.NewTask("test:observe", nil)), "boom")

	require.Equal(t, okBefore+1, testutil.ToFloat64(processed.WithLabelValues("test:observe", "ok")))
	require.Equal(t, errBefore+1, testutil.ToFloat64(processed.WithLabelValues("test:observe", "error")))
}

func TestNoopEnqueuer(t *testing.T) {
	info, err := Noop{}.Enqueue(context.Background(), asynq.NewTask("x", nil))
	require.NoError(t, err)
	require.Equal(t, "x", info.Type)
}

func TestQueueWeightsOrder(t *testing.T) {
	require.Greater(t, queueWeights[QueueScoring], queueWeights[QueueDefault])
	require.Greater(t, queueWeights[QueueDefault], queueWeights[QueueLow])
}
