package droptable

import (
	"context"
	"math/rand/v2"

	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/logger"
	"progression-engine/services/inventory"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("progression-engine/services/droptable")

// Rand is the source for live rolls.
type Rand interface {
	Float64() float64
}

type liveRand struct{}

func (liveRand) Float64() float64 { return rand.Float64() }

type RollRequest struct {
	Weights Weights
	Filter  Filter
}

type Service struct {
	catalog   Catalog
	pity      PityStore
	inventory *inventory.Service
	rand      Rand
	threshold int
}

type ServiceParams struct {
	fx.In
	Config    *config.Config
	Catalog   Catalog
	Pity      PityStore
	Inventory *inventory.Service
	Rand      Rand `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	r := p.Rand
	if r == nil {
		r = liveRand{}
	}
	return &Service{
		catalog:   p.Catalog,
		pity:      p.Pity,
		inventory: p.Inventory,
		rand:      r,
		threshold: p.Config.Progression.PityThreshold,
	}
}

// WithTrx binds the pity store and inventory writes to tx.
func (s *Service) WithTrx(tx *gorm.DB) *Service {
	cp := *s
	cp.pity = s.pity.WithTrx(tx)
	cp.inventory = s.inventory.WithTrx(tx)
	return &cp
}

// RollCard draws a tier, applies pity, then picks uniformly among the cards
// of that tier that pass the filter. An empty pool yields nil, nil. A due
// pity trigger is only spent when the filter leaves an epic or legendary
// card to give.
func (s *Service) RollCard(ctx context.Context, userID string, req RollRequest) (*Card, error) {
	ctx, span := tracer.Start(ctx, "droptable.RollCard")
	defer span.End()

	zapLog := logger.Ctx(ctx).With(zap.String("user_id", userID))

	natural := req.Weights.Pick(s.rand.Float64())
	rarity := natural

	cards, err := s.catalog.Cards(ctx)
	if err != nil {
		zapLog.Error("failed to load card catalog", zap.Error(err))
		return nil, err
	}

	if s.threshold > 0 {
		hasEpic := hasTier(cards, Epic, req.Filter)
		hasLegendary := hasTier(cards, Legendary, req.Filter)
		forced, err := s.pity.Advance(ctx, userID, natural, s.threshold, hasEpic || hasLegendary)
		if err != nil {
			zapLog.Error("failed to advance pity counter", zap.Error(err))
			return nil, err
		}
		if forced && !natural.AtLeastEpic() {
			rarity = req.Weights.PickHigh(s.rand.Float64())
			switch {
			case rarity == Epic && !hasEpic:
				rarity = Legendary
			case rarity == Legendary && !hasLegendary:
				rarity = Epic
			}
			pityTriggers.Inc()
			zapLog.Info("pity triggered", zap.String("rarity", string(rarity)))
		}
	}
	span.SetAttributes(
		attribute.String("natural", string(natural)),
		attribute.String("rarity", string(rarity)),
	)

	pool := make([]*Card, 0, 16)
	for i := range cards {
		if cards[i].Rarity == rarity && req.Filter.Match(cards[i]) {
			pool = append(pool, &cards[i])
		}
	}
	if len(pool) == 0 {
		emptyPools.WithLabelValues(string(rarity)).Inc()
		zapLog.Warn("card pool empty",
			zap.Error(errutil.ErrCardPoolEmpty),
			zap.String("rarity", string(rarity)),
			zap.String("member", req.Filter.Member),
			zap.String("era", req.Filter.Era),
			zap.String("set", req.Filter.Set),
		)
		return nil, nil
	}

	idx := int(s.rand.Float64() * float64(len(pool)))
	if idx >= len(pool) {
		idx = len(pool) - 1
	}
	card := *pool[idx]
	rolls.WithLabelValues(string(card.Rarity)).Inc()
	return &card, nil
}

// Award rolls a card and stores it in the user's inventory. A nil item with
// a nil error means the pool was empty.
func (s *Service) Award(ctx context.Context, userID string, req RollRequest, src inventory.Source) (*inventory.Item, error) {
	card, err := s.RollCard(ctx, userID, req)
	if err != nil || card == nil {
		return nil, err
	}
	return s.inventory.Create(ctx, userID, inventory.CardRef{
		CardID:  card.CardID,
		AssetID: card.AssetID,
		Rarity:  string(card.Rarity),
	}, src)
}

func (s *Service) PityCount(ctx context.Context, userID string) (int64, error) {
	return s.pity.Get(ctx, userID)
}

func (s *Service) Inventory() *inventory.Service {
	return s.inventory
}

func providePityStore(db *gorm.DB) PityStore {
	return NewDBPityStore(db)
}

func hasTier(cards []Card, r Rarity, f Filter) bool {
	for i := range cards {
		if cards[i].Rarity == r && f.Match(cards[i]) {
			return true
		}
	}
	return false
}
