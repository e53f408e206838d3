package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"progression-engine/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Publisher enqueues scored events. The event id doubles as the asynq task
// id so a resubmitted event is dropped while the first is still queued.
type Publisher struct {
	enqueuer task.Enqueuer
}

type PublisherParams struct {
	fx.In
	Enqueuer task.Enqueuer
}

func NewPublisher(p PublisherParams) *Publisher {
	return &Publisher{enqueuer: p.Enqueuer}
}

func (p *Publisher) QuizCompleted(ctx context.Context, payload QuizCompletedPayload) error {
	return p.publish(ctx, TypeQuizCompleted, payload.EventID, payload)
}

func (p *Publisher) StreamLogged(ctx context.Context, payload StreamLoggedPayload) error {
	return p.publish(ctx, TypeStreamLogged, payload.EventID, payload)
}

func (p *Publisher) publish(ctx context.Context, typ, eventID string, payload any) error {
	if eventID == "" {
		return fmt.Errorf("%s: event_id is required", typ)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}

	_, err = p.enqueuer.Enqueue(ctx, asynq.NewTask(typ, b),
		asynq.TaskID(typ+":"+eventID),
		asynq.Queue(task.QueueScoring),
		asynq.MaxRetry(10),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		zap.L().Debug("scored event already queued", zap.String("task_type", typ), zap.String("event_id", eventID))
		return nil
	}
	return err
}
