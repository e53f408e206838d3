package balance

import (
	"context"
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

var tracer = otel.Tracer("progression-engine/services/balance")

type Service struct {
	db     *gorm.DB
	wallet repository.Repository[Wallet]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		wallet: repository.ProvideStore[Wallet](p.DB),
	}
}

// WithTrx binds the service to an open transaction.
func (s *Service) WithTrx(tx *gorm.DB) *Service {
	return &Service{
		db:     tx,
		wallet: s.wallet.WithTrx(tx),
	}
}

// Ensure creates an empty wallet for userID if none exists.
func (s *Service) Ensure(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Wallet{UserID: userID}).Error
	return errutil.Datastore(err)
}

// Get returns the user's wallet, or an empty wallet if none was created yet.
func (s *Service) Get(ctx context.Context, userID string) (*Wallet, error) {
	w, err := s.wallet.FindOne(ctx, &Wallet{UserID: userID})
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	if w == nil {
		return &Wallet{UserID: userID}, nil
	}
	return w, nil
}

// Credit adds non-negative deltas to the wallet, creating it if absent.
func (s *Service) Credit(ctx context.Context, userID string, d Delta) (*Wallet, error) {
	ctx, span := tracer.Start(ctx, "balance.Credit")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int64("dust", d.Dust),
		attribute.Int64("xp", d.XP),
	)

	zapLog := logger.Ctx(ctx).With(zap.String("user_id", userID))

	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if d.Dust < 0 || d.XP < 0 {
		return nil, errutil.BadRequest("credit amounts must be >= 0", nil)
	}

	var out *Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		svc := s.WithTrx(tx)
		if err := svc.Ensure(ctx, userID); err != nil {
			return err
		}

		if !d.IsZero() {
			if err := tx.Model(&Wallet{}).
				Where("user_id = ?", userID).
				Updates(map[string]any{
					"xp":         gorm.Expr("xp + ?", d.XP),
					"dust":       gorm.Expr("dust + ?", d.Dust),
					"updated_at": time.Now().UTC(),
				}).Error; err != nil {
				return err
			}
		}

		w, err := svc.wallet.FindOne(ctx, &Wallet{UserID: userID})
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		zapLog.Error("failed to credit wallet", zap.Error(err))
		return nil, errutil.Datastore(err)
	}

	credited.WithLabelValues("dust").Add(float64(d.Dust))
	credited.WithLabelValues("xp").Add(float64(d.XP))

	return out, nil
}
