package leaderboard

import (
	"context"
	"fmt"
	"time"

	"progression-engine/pkg/errutil"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("progression-engine/services/leaderboard")

const (
	defaultTop = 10
	maxTop     = 100
)

// submitSQL keeps the maximum score. scored_at is assigned before score
// because MySQL evaluates SET assignments left to right.
const submitSQL = `UPDATE leaderboard_entries SET ` +
	`scored_at = CASE WHEN score < ? THEN ? ELSE scored_at END, ` +
	`score = CASE WHEN score < ? THEN ? ELSE score END, ` +
	`display_name = ?, avatar_url = ?, updated_at = ? ` +
	`WHERE period_key = ? AND user_id = ?`

type Service struct {
	db    *gorm.DB
	entry repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, entry: repository.ProvideStore[Entry](p.DB)}
}

func (s *Service) WithTrx(tx *gorm.DB) *Service {
	return &Service{db: tx, entry: s.entry.WithTrx(tx)}
}

// Submit records a score, keeping the best one seen for the period, and
// refreshes the profile fields.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Entry, error) {
	ctx, span := tracer.Start(ctx, "leaderboard.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("period_key", sub.PeriodKey),
		attribute.String("user_id", sub.UserID),
		attribute.Int64("score", sub.Score),
	)

	if sub.PeriodKey == "" || sub.UserID == "" {
		return nil, errutil.BadRequest("period_key and user_id are required", nil)
	}
	if sub.Score < 0 {
		return nil, errutil.BadRequest("score must be >= 0", nil)
	}

	var out *Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Entry{
			PeriodKey: sub.PeriodKey,
			UserID:    sub.UserID,
			ScoredAt:  now,
		}).Error; err != nil {
			return err
		}
		if err := tx.Exec(submitSQL,
			sub.Score, now, sub.Score, sub.Score,
			sub.DisplayName, sub.AvatarURL, now,
			sub.PeriodKey, sub.UserID,
		).Error; err != nil {
			return err
		}
		e, err := s.entry.WithTrx(tx).FindOne(ctx, &Entry{PeriodKey: sub.PeriodKey, UserID: sub.UserID})
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		logger.Ctx(ctx).Error("failed to submit score",
			zap.String("period_key", sub.PeriodKey),
			zap.String("user_id", sub.UserID),
			zap.Error(err),
		)
		return nil, errutil.Datastore(err)
	}

	result := "kept"
	if out.Score == sub.Score {
		result = "raised"
	}
	submissions.WithLabelValues(result).Inc()
	return out, nil
}

// Top returns the best entries of a period, highest score first.
func (s *Service) Top(ctx context.Context, periodKey string, limit int) ([]*Ranked, error) {
	ctx, span := tracer.Start(ctx, "leaderboard.Top")
	defer span.End()

	if limit <= 0 {
		limit = defaultTop
	}
	if limit > maxTop {
		limit = maxTop
	}

	var entries []*Entry
	if err := s.db.WithContext(ctx).
		Where("period_key = ?", periodKey).
		Order("score DESC").
		Order("scored_at ASC").
		Order("user_id ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, errutil.Datastore(err)
	}

	out := make([]*Ranked, 0, len(entries))
	for i, e := range entries {
		out = append(out, &Ranked{Rank: int64(i + 1), Entry: e})
	}
	return out, nil
}

// Get returns the user's entry with its rank: one more than the number of
// strictly higher scores.
func (s *Service) Get(ctx context.Context, periodKey, userID string) (*Ranked, error) {
	ctx, span := tracer.Start(ctx, "leaderboard.Get")
	defer span.End()

	e, err := s.entry.FindOne(ctx, &Entry{PeriodKey: periodKey, UserID: userID})
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	if e == nil {
		return nil, errutil.NotFound(fmt.Sprintf("no leaderboard entry for %s in %s", userID, periodKey), nil)
	}

	var higher int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Where("period_key = ? AND score > ?", periodKey, e.Score).
		Count(&higher).Error; err != nil {
		return nil, errutil.Datastore(err)
	}
	return &Ranked{Rank: higher + 1, Entry: e}, nil
}
