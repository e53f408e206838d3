package badge

import (
	"context"
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
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("progression-engine/services/badge")

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	grant repository.Repository[Grant]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		grant: repository.ProvideStore[Grant](p.DB),
	}
}

func (s *Service) WithTrx(tx *gorm.DB) *Service {
	return &Service{
		db:    tx,
		node:  s.node,
		grant: s.grant.WithTrx(tx),
	}
}

// Grant gives code to userID once. A user that already owns the badge gets
// granted=false and no error.
func (s *Service) Grant(ctx context.Context, userID, code, source string) (bool, error) {
	ctx, span := tracer.Start(ctx, "badge.Grant")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID), attribute.String("badge_code", code))

	if code == "" {
		return false, errutil.BadRequest("badge code is required", nil)
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Grant{
			ID:        s.node.Generate().String(),
			UserID:    userID,
			BadgeCode: code,
			Source:    source,
			GrantedAt: time.Now().UTC(),
		})
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error) {
			return false, nil
		}
		logger.Ctx(ctx).Error("failed to grant badge",
			zap.String("user_id", userID),
			zap.String("badge_code", code),
			zap.Error(res.Error),
		)
		return false, errutil.Datastore(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	granted.WithLabelValues(source).Inc()
	logger.Ctx(ctx).Info("badge granted", zap.String("user_id", userID), zap.String("badge_code", code))
	return true, nil
}

// GrantAll grants every code and returns the ones that were newly granted.
func (s *Service) GrantAll(ctx context.Context, userID, source string, codes ...string) ([]string, error) {
	var out []string
	for _, code := range codes {
		ok, err := s.Grant(ctx, userID, code, source)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, code)
		}
	}
	return out, nil
}

func (s *Service) Has(ctx context.Context, userID, code string) (bool, error) {
	n, err := s.grant.Count(ctx, &Grant{UserID: userID, BadgeCode: code})
	if err != nil {
		return false, errutil.Datastore(err)
	}
	return n > 0, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*Grant, error) {
	grants, err := s.grant.Find(ctx, &Grant{UserID: userID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "granted_at",
		OrderBy: "asc",
		Allow:   map[string]bool{"granted_at": true},
	}))
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	return grants, nil
}
