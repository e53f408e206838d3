package ledger

import (
	"context"
	"encoding/json"
	"time"

	"progression-engine/pkg/db"
	"progression-engine/pkg/db/option"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("progression-engine/services/ledger")

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	ledger repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		ledger: repository.ProvideStore[Entry](p.DB),
	}
}

func (s *Service) WithTrx(tx *gorm.DB) *Service {
	return &Service{
		db:     tx,
		node:   s.node,
		ledger: s.ledger.WithTrx(tx),
	}
}

// Record inserts the entry for (userID, rewardKey). The first writer gets
// granted=true; every later or concurrent writer gets granted=false and no
// error.
func (s *Service) Record(ctx context.Context, userID string, kind Kind, rewardKey string, metadata any) (bool, error) {
	ctx, span := tracer.Start(ctx, "ledger.Record")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("reward_key", rewardKey),
	)

	zapLog := logger.Ctx(ctx).With(zap.String("user_id", userID), zap.String("reward_key", rewardKey))

	var meta datatypes.JSON
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return false, errutil.BadRequest("invalid ledger metadata", err)
		}
		meta = datatypes.JSON(b)
	}

	entry := NewEntry(EntryParams{
		EntryID:   s.node.Generate().String(),
		UserID:    userID,
		Kind:      kind,
		RewardKey: rewardKey,
		Metadata:  meta,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	})

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error) {
			conflicts.WithLabelValues(string(kind)).Inc()
			return false, nil
		}
		zapLog.Error("failed to record ledger entry", zap.Error(res.Error))
		return false, errutil.Datastore(res.Error)
	}
	if res.RowsAffected == 0 {
		conflicts.WithLabelValues(string(kind)).Inc()
		zapLog.Debug("ledger entry already exists")
		return false, nil
	}

	recorded.WithLabelValues(string(kind)).Inc()
	return true, nil
}

func (s *Service) Exists(ctx context.Context, userID, rewardKey string) (bool, error) {
	n, err := s.ledger.Count(ctx, &Entry{UserID: userID, RewardKey: rewardKey})
	if err != nil {
		return false, errutil.Datastore(err)
	}
	return n > 0, nil
}

// List returns the user's entries oldest first, optionally filtered by kind.
func (s *Service) List(ctx context.Context, userID string, kind Kind) ([]*Entry, error) {
	entries, err := s.ledger.Find(ctx, &Entry{UserID: userID, Kind: kind}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "asc",
		Allow:   map[string]bool{"created_at": true},
	}))
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	return entries, nil
}

// Audit returns the user's entries whose hash no longer matches their fields.
func (s *Service) Audit(ctx context.Context, userID string) ([]*Entry, error) {
	ctx, span := tracer.Start(ctx, "ledger.Audit")
	defer span.End()

	entries, err := s.List(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	var tampered []*Entry
	for _, e := range entries {
		if !e.Verify() {
			tampered = append(tampered, e)
		}
	}
	if len(tampered) > 0 {
		logger.Ctx(ctx).Warn("ledger entries failed verification",
			zap.String("user_id", userID),
			zap.Int("count", len(tampered)),
		)
	}
	return tampered, nil
}
