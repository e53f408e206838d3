package scoring

import (
	"context"
	"encoding/json"
	"fmt"

	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/period"
	"progression-engine/services/droptable"
	"progression-engine/services/inventory"
	"progression-engine/services/leaderboard"
	"progression-engine/services/ledger"
	"progression-engine/services/mastery"
	"progression-engine/services/quest"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("progression-engine/services/scoring")

// QuizOutcome is what a single quiz event produced.
type QuizOutcome struct {
	Duplicate bool
	Awards    []mastery.LevelAward
	Quests    []*quest.Progress
	Card      *inventory.Item
}

type StreamOutcome struct {
	Duplicate bool
	Quests    []*quest.Progress
}

// Task applies scored events. Each event id is recorded in the ledger in the
// same transaction as its grants, so a redelivered task changes nothing.
type Task struct {
	db          *gorm.DB
	clock       period.Clock
	ledger      *ledger.Service
	mastery     *mastery.Service
	quest       *quest.Service
	drops       *droptable.Service
	leaderboard *leaderboard.Service
}

type TaskParams struct {
	fx.In
	DB          *gorm.DB
	Config      *config.Config
	Clock       *period.Clock `optional:"true"`
	Ledger      *ledger.Service
	Mastery     *mastery.Service
	Quest       *quest.Service
	Drops       *droptable.Service
	Leaderboard *leaderboard.Service
}

func NewTask(p TaskParams) *Task {
	clock := period.NewClock(p.Config.Location())
	if p.Clock != nil {
		clock = *p.Clock
	}
	return &Task{
		db:          p.DB,
		clock:       clock,
		ledger:      p.Ledger,
		mastery:     p.Mastery,
		quest:       p.Quest,
		drops:       p.Drops,
		leaderboard: p.Leaderboard,
	}
}

func (t *Task) HandleQuizCompleted(ctx context.Context, task *asynq.Task) error {
	var payload QuizCompletedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		zap.L().Error("invalid quiz completed payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	_, err := t.ApplyQuiz(ctx, payload)
	return skipIfBadRequest(err)
}

func (t *Task) HandleStreamLogged(ctx context.Context, task *asynq.Task) error {
	var payload StreamLoggedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		zap.L().Error("invalid stream logged payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	_, err := t.ApplyStream(ctx, payload)
	return skipIfBadRequest(err)
}

func skipIfBadRequest(err error) error {
	if err != nil && errutil.StatusOf(err) == errutil.StatusBadRequest {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// ApplyQuiz grants mastery XP, advances quiz quests, submits RawXP to the
// daily and weekly leaderboards and rolls a quiz card. Asset resolution for
// every new card is scheduled after commit.
func (t *Task) ApplyQuiz(ctx context.Context, p QuizCompletedPayload) (*QuizOutcome, error) {
	ctx, span := tracer.Start(ctx, "scoring.ApplyQuiz")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", p.EventID),
		attribute.String("user_id", p.UserID),
		attribute.Int64("raw_xp", p.RawXP),
	)

	zapLog := logger.Ctx(ctx).With(
		zap.String("event_id", p.EventID),
		zap.String("user_id", p.UserID),
		zap.String("quiz_id", p.QuizID),
	)

	if p.EventID == "" || p.UserID == "" {
		return nil, errutil.BadRequest("event_id and user_id are required", nil)
	}
	if p.RawXP < 0 || p.Correct < 0 {
		return nil, errutil.BadRequest("raw_xp and correct must be >= 0", nil)
	}

	out := &QuizOutcome{}
	var items []*inventory.Item
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		granted, err := t.ledger.WithTrx(tx).Record(ctx, p.UserID, ledger.KindScoringEvent, ledger.EventKey(p.EventID), p)
		if err != nil {
			return err
		}
		if !granted {
			out.Duplicate = true
			return nil
		}

		awards, levelItems, err := t.mastery.WithTrx(tx).AwardXP(ctx, p.UserID, mastery.XPGrant{
			Members: p.Members,
			Eras:    p.Eras,
			RawXP:   p.RawXP,
		})
		if err != nil {
			return err
		}
		out.Awards = awards
		items = append(items, levelItems...)

		qs := t.quest.WithTrx(tx)
		for _, adv := range []quest.AdvanceRequest{
			{UserID: p.UserID, GoalType: GoalQuizCompleted, Amount: 1},
			{UserID: p.UserID, GoalType: GoalQuizCorrect, Amount: p.Correct},
		} {
			progress, err := qs.AdvanceQuest(ctx, adv)
			if err != nil {
				return err
			}
			out.Quests = append(out.Quests, progress...)
		}

		if p.RawXP > 0 {
			if err := t.submitScore(ctx, tx, p); err != nil {
				return err
			}
			item, err := t.drops.WithTrx(tx).Award(ctx, p.UserID,
				droptable.RollRequest{Weights: droptable.QuizWeights(p.RawXP)},
				inventory.QuizSource{QuizID: p.QuizID, RawXP: p.RawXP},
			)
			if err != nil {
				return err
			}
			out.Card = item
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		events.WithLabelValues(TypeQuizCompleted, "error").Inc()
		zapLog.Error("failed to apply quiz event", zap.Error(err))
		return nil, err
	}
	if out.Duplicate {
		events.WithLabelValues(TypeQuizCompleted, "duplicate").Inc()
		zapLog.Info("quiz event already applied")
		return out, nil
	}

	t.drops.Inventory().ScheduleAssetResolution(ctx, items...)
	events.WithLabelValues(TypeQuizCompleted, "applied").Inc()
	zapLog.Info("quiz event applied",
		zap.Int("level_awards", len(out.Awards)),
		zap.Int("quests", len(out.Quests)),
		zap.Bool("card", out.Card != nil),
	)
	return out, nil
}

// submitScore keeps the quiz's RawXP as the user's best on the current daily
// and weekly boards.
func (t *Task) submitScore(ctx context.Context, tx *gorm.DB, p QuizCompletedPayload) error {
	boards := t.leaderboard.WithTrx(tx)
	for _, per := range []period.Period{period.Daily, period.Weekly} {
		key, err := t.clock.Current(per)
		if err != nil {
			return err
		}
		if _, err := boards.Submit(ctx, leaderboard.Submission{
			PeriodKey:   key,
			UserID:      p.UserID,
			Score:       p.RawXP,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ApplyStream advances streaming quests by the logged minutes.
func (t *Task) ApplyStream(ctx context.Context, p StreamLoggedPayload) (*StreamOutcome, error) {
	ctx, span := tracer.Start(ctx, "scoring.ApplyStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", p.EventID),
		attribute.String("user_id", p.UserID),
		attribute.Int64("minutes", p.Minutes),
	)

	zapLog := logger.Ctx(ctx).With(zap.String("event_id", p.EventID), zap.String("user_id", p.UserID))

	if p.EventID == "" || p.UserID == "" {
		return nil, errutil.BadRequest("event_id and user_id are required", nil)
	}
	if p.Minutes < 0 {
		return nil, errutil.BadRequest("minutes must be >= 0", nil)
	}

	out := &StreamOutcome{}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		granted, err := t.ledger.WithTrx(tx).Record(ctx, p.UserID, ledger.KindScoringEvent, ledger.EventKey(p.EventID), p)
		if err != nil {
			return err
		}
		if !granted {
			out.Duplicate = true
			return nil
		}

		progress, err := t.quest.WithTrx(tx).AdvanceQuest(ctx, quest.AdvanceRequest{
			UserID:     p.UserID,
			GoalType:   GoalStreamMinutes,
			Amount:     p.Minutes,
			Attributes: map[string]any{"source": p.Source},
		})
		if err != nil {
			return err
		}
		out.Quests = progress
		return nil
	})
	if err != nil {
		events.WithLabelValues(TypeStreamLogged, "error").Inc()
		zapLog.Error("failed to apply stream event", zap.Error(err))
		return nil, err
	}
	if out.Duplicate {
		events.WithLabelValues(TypeStreamLogged, "duplicate").Inc()
		return out, nil
	}
	events.WithLabelValues(TypeStreamLogged, "applied").Inc()
	return out, nil
}
