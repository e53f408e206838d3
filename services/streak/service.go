package streak

import (
	"context"
	"fmt"
	"slices"
	"time"

	"progression-engine/pkg/errutil"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/period"
	"progression-engine/services/badge"
	"progression-engine/services/balance"
	"progression-engine/services/droptable"
	"progression-engine/services/inventory"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("progression-engine/services/streak")

type Service struct {
	db      *gorm.DB
	balance *balance.Service
	badges  *badge.Service
	drops   *droptable.Service
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Balance *balance.Service
	Badges  *badge.Service
	Drops   *droptable.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		balance: p.Balance,
		badges:  p.Badges,
		drops:   p.Drops,
	}
}

func (s *Service) WithTrx(tx *gorm.DB) *Service {
	return &Service{
		db:      tx,
		balance: s.balance.WithTrx(tx),
		badges:  s.badges.WithTrx(tx),
		drops:   s.drops.WithTrx(tx),
	}
}

// RecordPeriodCompletion advances the user's streak for p to periodKey.
// The stored key is the guard. The immediate successor increments the
// count and a later key restarts it at 1. A repeated key changes nothing,
// and so does a key older than the stored one: a late completion is
// ignored instead of resetting the streak to 1. periodKey must be in the
// canonical form period.Key produces.
func (s *Service) RecordPeriodCompletion(ctx context.Context, userID string, p period.Period, periodKey string) (*Update, error) {
	ctx, span := tracer.Start(ctx, "streak.RecordPeriodCompletion")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("period", string(p)),
		attribute.String("period_key", periodKey),
	)

	zapLog := logger.Ctx(ctx).With(
		zap.String("user_id", userID),
		zap.String("period", string(p)),
		zap.String("period_key", periodKey),
	)

	if !p.Valid() {
		return nil, errutil.BadRequest(fmt.Sprintf("unknown period %q", p), nil)
	}
	prev, err := period.Previous(p, periodKey)
	if err != nil {
		return nil, errutil.BadRequest("invalid period key", err)
	}

	cols := columnsFor(p)
	out := &Update{Period: p, PeriodKey: periodKey, Badges: []string{}}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		svc := s.WithTrx(tx)
		if err := svc.balance.Ensure(ctx, userID); err != nil {
			return err
		}

		// The count is assigned before the key: MySQL evaluates SET
		// assignments left to right.
		res := tx.Exec(fmt.Sprintf(
			"UPDATE wallets SET %[1]s = CASE WHEN %[2]s = ? THEN %[1]s + 1 ELSE 1 END, %[2]s = ?, updated_at = ? WHERE user_id = ? AND %[2]s < ?",
			cols.count, cols.key,
		), prev, periodKey, time.Now().UTC(), userID, periodKey)
		if res.Error != nil {
			return res.Error
		}
		out.Changed = res.RowsAffected > 0

		var w balance.Wallet
		if err := tx.Where("user_id = ?", userID).Take(&w).Error; err != nil {
			return err
		}
		out.Count = w.StreakDailyCount
		if p == period.Weekly {
			out.Count = w.StreakWeeklyCount
		}
		if !out.Changed {
			return nil
		}

		countBadge, milestoneBadge := badgesFor(p, out.Count)
		var codes []string
		for _, c := range []string{countBadge, milestoneBadge} {
			if c != "" {
				codes = append(codes, c)
			}
		}
		granted, err := svc.badges.GrantAll(ctx, userID, badge.SourceStreak, codes...)
		if err != nil {
			return err
		}
		out.Badges = append(out.Badges, granted...)

		if milestoneBadge == "" || !slices.Contains(granted, milestoneBadge) {
			return nil
		}
		item, err := svc.drops.Award(ctx, userID, droptable.RollRequest{Weights: droptable.StreakWeights},
			inventory.StreakSource{Period: string(p), Count: out.Count})
		if err != nil {
			return err
		}
		out.Item = item
		return nil
	})
	if err != nil {
		zapLog.Error("failed to record period completion", zap.Error(err))
		return nil, errutil.Datastore(err)
	}

	result := "unchanged"
	if out.Changed {
		result = "advanced"
		if out.Count == 1 {
			result = "reset"
		}
		zapLog.Info("streak updated", zap.Int64("count", out.Count), zap.Strings("badges", out.Badges))
	}
	updates.WithLabelValues(string(p), result).Inc()

	if out.Item != nil {
		s.drops.Inventory().ScheduleAssetResolution(ctx, out.Item)
	}
	return out, nil
}
