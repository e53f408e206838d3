package inventory

import (
	"context"
	"encoding/json"
	"time"

	"progression-engine/pkg/db/option"
	"progression-engine/pkg/db/pagination"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/repository"
	"progression-engine/pkg/task"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("progression-engine/services/inventory")

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer task.Enqueuer

	item repository.Repository[Item]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	enq := p.Enqueuer
	if enq == nil {
		enq = task.Noop{}
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: enq,
		item:     repository.ProvideStore[Item](p.DB),
	}
}

func (s *Service) WithTrx(tx *gorm.DB) *Service {
	return &Service{
		db:       tx,
		node:     s.node,
		enqueuer: s.enqueuer,
		item:     s.item.WithTrx(tx),
	}
}

func (s *Service) Create(ctx context.Context, userID string, card CardRef, src Source) (*Item, error) {
	ctx, span := tracer.Start(ctx, "inventory.Create")
	defer span.End()

	srcType, srcCtx, err := EncodeSource(src)
	if err != nil {
		return nil, errutil.BadRequest("invalid item source", err)
	}
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("card_id", card.CardID),
		attribute.String("source_type", string(srcType)),
	)

	item := &Item{
		ID:            s.node.Generate().String(),
		UserID:        userID,
		CardID:        card.CardID,
		AssetID:       card.AssetID,
		Rarity:        card.Rarity,
		SourceType:    srcType,
		SourceContext: srcCtx,
		AcquiredAt:    time.Now().UTC(),
	}
	if err := s.item.Create(ctx, item); err != nil {
		logger.Ctx(ctx).Error("failed to create inventory item",
			zap.String("user_id", userID),
			zap.String("card_id", card.CardID),
			zap.Error(err),
		)
		return nil, errutil.Datastore(err)
	}

	itemsCreated.WithLabelValues(string(srcType)).Inc()
	return item, nil
}

func (s *Service) Get(ctx context.Context, itemID string) (*Item, error) {
	item, err := s.item.FindOne(ctx, &Item{ID: itemID})
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	return item, nil
}

// List pages through the user's items, newest first.
func (s *Service) List(ctx context.Context, userID string, p pagination.Pagination) ([]*Item, *pagination.PageInfo, error) {
	p.Column = "acquired_at"
	p = p.Normalize()

	items, err := s.item.Find(ctx, &Item{UserID: userID}, option.ApplyPagination(p))
	if err != nil {
		return nil, nil, errutil.Datastore(err)
	}

	return pagination.BuildCursorPageInfo(items, p.Limit, func(i *Item) pagination.Cursor {
		return pagination.Cursor{CreatedAt: i.AcquiredAt, ID: i.ID}
	})
}

func (s *Service) Count(ctx context.Context, userID string) (int64, error) {
	n, err := s.item.Count(ctx, &Item{UserID: userID})
	if err != nil {
		return 0, errutil.Datastore(err)
	}
	return n, nil
}

// ScheduleAssetResolution enqueues a resolve task per item. Failures are
// logged only; an item without an image URL is still a valid grant.
func (s *Service) ScheduleAssetResolution(ctx context.Context, items ...*Item) {
	for _, item := range items {
		if item == nil || item.ImageURL != "" {
			continue
		}
		payload, _ := json.Marshal(resolveAssetPayload{ItemID: item.ID})
		if _, err := s.enqueuer.Enqueue(ctx,
			asynq.NewTask(TypeResolveAsset, payload),
			asynq.Queue(task.QueueLow),
			asynq.MaxRetry(5),
			asynq.ProcessIn(2*time.Second),
		); err != nil {
			logger.Ctx(ctx).Warn("failed to enqueue asset resolution",
				zap.String("item_id", item.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) setImageURL(ctx context.Context, itemID, url string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Item{}).
		Where("id = ? AND image_url = ?", itemID, "").
		Update("image_url", url)
	if res.Error != nil {
		return false, errutil.Datastore(res.Error)
	}
	return res.RowsAffected > 0, nil
}
