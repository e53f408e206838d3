package quest

import (
	"context"
	"fmt"
	"time"

	"progression-engine/pkg/celengine"
	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/period"
	"progression-engine/pkg/repository"
	"progression-engine/services/badge"
	"progression-engine/services/balance"
	"progression-engine/services/droptable"
	"progression-engine/services/inventory"
	"progression-engine/services/ledger"
	"progression-engine/services/streak"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("progression-engine/services/quest")

// advanceSQL adds to progress clamped at goal_value. completed is assigned
// first because MySQL evaluates SET assignments left to right. It is a bare
// comparison: Postgres types bind parameters in CASE branches as text, which
// does not assign to a boolean column.
const advanceSQL = `UPDATE quest_progress SET ` +
	`completed = (progress + ? >= goal_value), ` +
	`progress = CASE WHEN progress + ? >= goal_value THEN goal_value ELSE progress + ? END, ` +
	`updated_at = ? ` +
	`WHERE user_id = ? AND quest_code = ? AND period_key = ? AND completed = ?`

type Service struct {
	db       *gorm.DB
	clock    period.Clock
	defs     *DefinitionStore
	progress repository.Repository[Progress]

	ledger  *ledger.Service
	balance *balance.Service
	badges  *badge.Service
	drops   *droptable.Service
	streak  *streak.Service
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Config  *config.Config
	Clock   *period.Clock `optional:"true"`
	Defs    *DefinitionStore
	Ledger  *ledger.Service
	Balance *balance.Service
	Badges  *badge.Service
	Drops   *droptable.Service
	Streak  *streak.Service
}

func NewService(p ServiceParams) *Service {
	clock := period.NewClock(p.Config.Location())
	if p.Clock != nil {
		clock = *p.Clock
	}
	return &Service{
		db:       p.DB,
		clock:    clock,
		defs:     p.Defs,
		progress: repository.ProvideStore[Progress](p.DB),
		ledger:   p.Ledger,
		balance:  p.Balance,
		badges:   p.Badges,
		drops:    p.Drops,
		streak:   p.Streak,
	}
}

func (s *Service) WithTrx(tx *gorm.DB) *Service {
	return &Service{
		db:       tx,
		clock:    s.clock,
		defs:     s.defs.WithTrx(tx),
		progress: s.progress.WithTrx(tx),
		ledger:   s.ledger.WithTrx(tx),
		balance:  s.balance.WithTrx(tx),
		badges:   s.badges.WithTrx(tx),
		drops:    s.drops.WithTrx(tx),
		streak:   s.streak.WithTrx(tx),
	}
}

// AdvanceQuest adds Amount to every active quest with GoalType in its
// current period. It is additive: the same event must not be submitted twice.
func (s *Service) AdvanceQuest(ctx context.Context, req AdvanceRequest) ([]*Progress, error) {
	ctx, span := tracer.Start(ctx, "quest.AdvanceQuest")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("goal_type", req.GoalType),
		attribute.Int64("amount", req.Amount),
	)

	zapLog := logger.Ctx(ctx).With(zap.String("user_id", req.UserID), zap.String("goal_type", req.GoalType))

	if req.UserID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if req.Amount < 0 {
		return nil, errutil.BadRequest("amount must be >= 0", nil)
	}
	out := []*Progress{}
	if req.Amount == 0 {
		return out, nil
	}

	defs, err := s.defs.ListActiveByGoal(ctx, req.GoalType)
	if err != nil {
		return nil, err
	}

	attrs := map[string]any{
		"amount":    req.Amount,
		"goal_type": req.GoalType,
		"attrs":     req.Attributes,
	}
	if req.Attributes == nil {
		attrs["attrs"] = map[string]any{}
	}

	for _, def := range defs {
		ok, err := celengine.Match(def.Condition, attrs)
		if err != nil {
			zapLog.Error("invalid quest condition", zap.String("quest_code", def.Code), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		key, err := s.clock.Current(def.Period)
		if err != nil {
			zapLog.Error("quest has no usable period", zap.String("quest_code", def.Code), zap.Error(err))
			continue
		}

		p, err := s.advance(ctx, req.UserID, def, key, req.Amount)
		if err != nil {
			zapLog.Error("failed to advance quest", zap.String("quest_code", def.Code), zap.Error(err))
			return out, errutil.Datastore(err)
		}
		advances.WithLabelValues(def.GoalType).Inc()
		if p.Completed {
			zapLog.Debug("quest completed", zap.String("quest_code", def.Code), zap.String("period_key", key))
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) advance(ctx context.Context, userID string, def *Definition, key string, amount int64) (*Progress, error) {
	var out *Progress
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Progress{
			UserID:    userID,
			QuestCode: def.Code,
			PeriodKey: key,
			Period:    def.Period,
			GoalValue: def.GoalValue,
		}).Error; err != nil {
			return err
		}
		if err := tx.Exec(advanceSQL,
			amount, amount, amount, time.Now().UTC(),
			userID, def.Code, key, false,
		).Error; err != nil {
			return err
		}
		p, err := s.progress.WithTrx(tx).FindOne(ctx, &Progress{UserID: userID, QuestCode: def.Code, PeriodKey: key})
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("quest progress %s/%s vanished", def.Code, key)
		}
		out = p
		return nil
	})
	return out, err
}

// ClaimQuest grants a completed quest's rewards once. After the claim it
// checks whether every active quest of the period is claimed and, if so,
// grants the period bonus and records the streak. A claim that succeeded
// but whose period step failed returns both the result and the error; the
// period step is safe to retry by claiming again.
func (s *Service) ClaimQuest(ctx context.Context, userID, questCode, periodKey string) (*ClaimResult, error) {
	ctx, span := tracer.Start(ctx, "quest.ClaimQuest")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("quest_code", questCode),
		attribute.String("period_key", periodKey),
	)

	zapLog := logger.Ctx(ctx).With(
		zap.String("user_id", userID),
		zap.String("quest_code", questCode),
		zap.String("period_key", periodKey),
	)

	def, err := s.defs.Get(ctx, questCode)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, errutil.NotFound(fmt.Sprintf("quest %s not found", questCode), nil)
	}
	if _, err := period.Start(def.Period, periodKey); err != nil {
		return nil, errutil.BadRequest("invalid period key", err)
	}

	out := &ClaimResult{
		QuestCode: questCode,
		PeriodKey: periodKey,
		Dust:      def.RewardDust,
		XP:        def.RewardXP,
		Badges:    []string{},
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		svc := s.WithTrx(tx)

		res := tx.Model(&Progress{}).
			Where("user_id = ? AND quest_code = ? AND period_key = ? AND completed = ? AND claimed = ?",
				userID, questCode, periodKey, true, false).
			Updates(map[string]any{"claimed": true, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			p, err := svc.progress.FindOne(ctx, &Progress{UserID: userID, QuestCode: questCode, PeriodKey: periodKey})
			if err != nil {
				return err
			}
			if p != nil && p.Claimed {
				return errutil.AlreadyClaimed(fmt.Sprintf("quest %s already claimed", questCode))
			}
			return errutil.NotCompleted(fmt.Sprintf("quest %s not completed", questCode))
		}

		if def.RewardDust > 0 || def.RewardXP > 0 {
			if _, err := svc.balance.Credit(ctx, userID, balance.Delta{Dust: def.RewardDust, XP: def.RewardXP}); err != nil {
				return err
			}
		}

		if def.RewardTicket {
			item, err := svc.drops.Award(ctx, userID,
				droptable.RollRequest{Weights: droptable.QuestWeights},
				inventory.QuestSource{QuestCode: questCode, PeriodKey: periodKey, Streaming: def.Streaming()})
			if err != nil {
				return err
			}
			out.Item = item
		}

		if def.RewardBadge != "" {
			granted, err := svc.badges.Grant(ctx, userID, def.RewardBadge, badge.SourceQuest)
			if err != nil {
				return err
			}
			if granted {
				out.Badges = append(out.Badges, def.RewardBadge)
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errutil.IsAlreadyClaimed(err):
			claims.WithLabelValues("already_claimed").Inc()
			// A previous claim may have stopped before the period step.
			if _, _, perr := s.completePeriod(ctx, userID, def.Period, periodKey); perr != nil {
				zapLog.Warn("period completion retry failed", zap.Error(perr))
			}
		case errutil.IsNotCompleted(err):
			claims.WithLabelValues("not_completed").Inc()
		default:
			zapLog.Error("failed to claim quest", zap.Error(err))
		}
		return nil, errutil.Datastore(err)
	}

	claims.WithLabelValues("claimed").Inc()
	s.drops.Inventory().ScheduleAssetResolution(ctx, out.Item)

	complete, update, err := s.completePeriod(ctx, userID, def.Period, periodKey)
	if err != nil {
		zapLog.Error("failed to complete period", zap.Error(err))
		return out, err
	}
	out.PeriodComplete = complete
	out.Streak = update
	if update != nil {
		out.Badges = append(out.Badges, update.Badges...)
	}
	return out, nil
}

// completePeriod grants the period bonus once every active quest of p is
// claimed for periodKey, then records the streak. Both steps are idempotent.
func (s *Service) completePeriod(ctx context.Context, userID string, p period.Period, periodKey string) (bool, *streak.Update, error) {
	ctx, span := tracer.Start(ctx, "quest.completePeriod")
	defer span.End()

	defs, err := s.defs.ListActive(ctx, p)
	if err != nil {
		return false, nil, err
	}
	if len(defs) == 0 {
		return false, nil, nil
	}
	codes := make([]string, 0, len(defs))
	for _, d := range defs {
		codes = append(codes, d.Code)
	}

	var claimed int64
	if err := s.db.WithContext(ctx).Model(&Progress{}).
		Where("user_id = ? AND period_key = ? AND claimed = ? AND quest_code IN ?", userID, periodKey, true, codes).
		Count(&claimed).Error; err != nil {
		return false, nil, errutil.Datastore(err)
	}
	if claimed < int64(len(codes)) {
		return false, nil, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		svc := s.WithTrx(tx)
		granted, err := svc.ledger.Record(ctx, userID, ledger.KindQuestPeriodComplete,
			ledger.PeriodCompletionKey(string(p), periodKey),
			map[string]any{"quests": codes})
		if err != nil || !granted {
			return err
		}
		_, err = svc.badges.Grant(ctx, userID, PeriodBadge(p), badge.SourceQuest)
		return err
	})
	if err != nil {
		return true, nil, errutil.Datastore(err)
	}
	periodCompletions.WithLabelValues(string(p)).Inc()

	update, err := s.streak.RecordPeriodCompletion(ctx, userID, p, periodKey)
	if err != nil {
		return true, nil, err
	}
	return true, update, nil
}

// GetProgress returns the user's progress on a quest. A quest never advanced
// in periodKey reports zero progress.
func (s *Service) GetProgress(ctx context.Context, userID, questCode, periodKey string) (*Progress, error) {
	ctx, span := tracer.Start(ctx, "quest.GetProgress")
	defer span.End()

	p, err := s.progress.FindOne(ctx, &Progress{UserID: userID, QuestCode: questCode, PeriodKey: periodKey})
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	if p != nil {
		return p, nil
	}

	def, err := s.defs.Get(ctx, questCode)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, errutil.NotFound(fmt.Sprintf("quest %s not found", questCode), nil)
	}
	return &Progress{
		UserID:    userID,
		QuestCode: questCode,
		PeriodKey: periodKey,
		Period:    def.Period,
		GoalValue: def.GoalValue,
	}, nil
}

// ListProgress returns progress for every active quest of p. An empty
// periodKey means the current period.
func (s *Service) ListProgress(ctx context.Context, userID string, p period.Period, periodKey string) ([]*Progress, error) {
	ctx, span := tracer.Start(ctx, "quest.ListProgress")
	defer span.End()

	if periodKey == "" {
		key, err := s.clock.Current(p)
		if err != nil {
			return nil, errutil.BadRequest("invalid period", err)
		}
		periodKey = key
	}

	defs, err := s.defs.ListActive(ctx, p)
	if err != nil {
		return nil, err
	}
	rows, err := s.progress.Find(ctx, &Progress{UserID: userID, PeriodKey: periodKey})
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	byCode := make(map[string]*Progress, len(rows))
	for _, r := range rows {
		byCode[r.QuestCode] = r
	}

	out := make([]*Progress, 0, len(defs))
	for _, d := range defs {
		if r, ok := byCode[d.Code]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, &Progress{
			UserID:    userID,
			QuestCode: d.Code,
			PeriodKey: periodKey,
			Period:    d.Period,
			GoalValue: d.GoalValue,
		})
	}
	return out, nil
}

// CurrentPeriodKey exposes the clock to callers that claim by period.
func (s *Service) CurrentPeriodKey(p period.Period) (string, error) {
	return s.clock.Current(p)
}
