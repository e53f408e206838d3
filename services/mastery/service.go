package mastery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"progression-engine/pkg/db/option"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/repository"
	"progression-engine/services/badge"
	"progression-engine/services/balance"
	"progression-engine/services/droptable"
	"progression-engine/services/inventory"
	"progression-engine/services/ledger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("progression-engine/services/mastery")

type Service struct {
	db    *gorm.DB
	rules *TrackRules
	track repository.Repository[Track]

	ledger  *ledger.Service
	balance *balance.Service
	badges  *badge.Service
	drops   *droptable.Service
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Rules   *TrackRules
	Ledger  *ledger.Service
	Balance *balance.Service
	Badges  *badge.Service
	Drops   *droptable.Service
}

func NewService(p ServiceParams) *Service {
	rules := p.Rules
	if rules == nil {
		rules = NewTrackRules()
	}
	return &Service{
		db:      p.DB,
		rules:   rules,
		track:   repository.ProvideStore[Track](p.DB),
		ledger:  p.Ledger,
		balance: p.Balance,
		badges:  p.Badges,
		drops:   p.Drops,
	}
}

func (s *Service) WithTrx(tx *gorm.DB) *Service {
	return &Service{
		db:      tx,
		rules:   s.rules,
		track:   s.track.WithTrx(tx),
		ledger:  s.ledger.WithTrx(tx),
		balance: s.balance.WithTrx(tx),
		badges:  s.badges.WithTrx(tx),
		drops:   s.drops.WithTrx(tx),
	}
}

type trackRef struct {
	kind    TrackKind
	display string
	key     string
}

func (g XPGrant) tracks() []trackRef {
	seen := map[trackRef]bool{}
	var out []trackRef
	add := func(kind TrackKind, names []string) {
		for _, n := range names {
			key := NormalizeKey(n)
			if key == "" {
				continue
			}
			id := trackRef{kind: kind, key: key}
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, trackRef{kind: kind, display: n, key: key})
		}
	}
	add(KindMember, g.Members)
	add(KindEra, g.Eras)
	return out
}

// AddXP scales RawXP into every named track and awards one card for each
// level crossed. Levels already awarded by a concurrent call are skipped.
// Asset resolution for the new cards is scheduled before returning, so
// callers holding an outer transaction use AwardXP instead.
func (s *Service) AddXP(ctx context.Context, userID string, grant XPGrant) ([]LevelAward, error) {
	awards, items, err := s.AwardXP(ctx, userID, grant)
	if err != nil {
		return awards, err
	}
	s.drops.Inventory().ScheduleAssetResolution(ctx, items...)
	return awards, nil
}

// AwardXP is AddXP without scheduling asset resolution. The caller schedules
// the returned items once its transaction has committed.
func (s *Service) AwardXP(ctx context.Context, userID string, grant XPGrant) ([]LevelAward, []*inventory.Item, error) {
	ctx, span := tracer.Start(ctx, "mastery.AddXP")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID), attribute.Int64("raw_xp", grant.RawXP))

	if userID == "" {
		return nil, nil, errutil.BadRequest("user_id is required", nil)
	}
	if grant.RawXP < 0 {
		return nil, nil, errutil.BadRequest("raw xp must be >= 0", nil)
	}

	awards := []LevelAward{}
	if grant.RawXP == 0 {
		return awards, nil, nil
	}

	var items []*inventory.Item
	for _, ref := range grant.tracks() {
		got, newItems, err := s.addTrackXP(ctx, userID, ref, grant.RawXP)
		if err != nil {
			return awards, nil, err
		}
		awards = append(awards, got...)
		items = append(items, newItems...)
	}
	return awards, items, nil
}

func (s *Service) addTrackXP(ctx context.Context, userID string, ref trackRef, rawXP int64) ([]LevelAward, []*inventory.Item, error) {
	zapLog := logger.Ctx(ctx).With(
		zap.String("user_id", userID),
		zap.String("kind", string(ref.kind)),
		zap.String("track_key", ref.key),
	)

	rule := s.rules.For(ref.kind, ref.key)
	scaled := rawXP * rule.Multiplier

	filter := droptable.Filter{}
	if !rule.Aggregate {
		if ref.kind == KindMember {
			filter.Member = ref.display
		} else {
			filter.Era = ref.display
		}
	}

	var (
		awards []LevelAward
		items  []*inventory.Item
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		svc := s.WithTrx(tx)

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Track{UserID: userID, Kind: ref.kind, TrackKey: ref.key, DisplayKey: ref.display}).Error; err != nil {
			return err
		}
		if err := tx.Model(&Track{}).
			Where("user_id = ? AND kind = ? AND track_key = ?", userID, ref.kind, ref.key).
			Updates(map[string]any{
				"xp":          gorm.Expr("xp + ?", scaled),
				"display_key": ref.display,
				"updated_at":  time.Now().UTC(),
			}).Error; err != nil {
			return err
		}

		track, err := svc.track.FindOne(ctx, &Track{UserID: userID, Kind: ref.kind, TrackKey: ref.key})
		if err != nil {
			return err
		}
		if track == nil {
			return fmt.Errorf("mastery track %s/%s vanished", ref.kind, ref.key)
		}

		prev := LevelForXP(track.XP-scaled, rule.Divider)
		next := LevelForXP(track.XP, rule.Divider)
		for lvl := prev + 1; lvl <= next; lvl++ {
			granted, err := svc.ledger.Record(ctx, userID, ledger.KindMasteryLevel,
				ledger.LevelKey(string(ref.kind), ref.key, lvl),
				map[string]any{"level": lvl, "xp": track.XP})
			if err != nil {
				return err
			}
			if !granted {
				continue
			}

			item, err := svc.drops.Award(ctx, userID, droptable.RollRequest{
				Weights: droptable.MasteryWeights,
				Filter:  filter,
			}, inventory.MasteryLevelSource{Kind: string(ref.kind), Key: ref.key, Level: lvl})
			if err != nil {
				return err
			}
			if item == nil {
				continue
			}
			items = append(items, item)
			awards = append(awards, LevelAward{
				Kind:   ref.kind,
				Key:    ref.key,
				Level:  lvl,
				ItemID: item.ID,
				CardID: item.CardID,
				Rarity: item.Rarity,
			})
		}
		return nil
	})
	if err != nil {
		zapLog.Error("failed to add mastery xp", zap.Error(err))
		return nil, nil, errutil.Datastore(err)
	}

	xpAdded.WithLabelValues(string(ref.kind)).Add(float64(scaled))
	levelAwards.WithLabelValues(string(ref.kind)).Add(float64(len(awards)))
	return awards, items, nil
}

// ClaimMilestone grants the one-time reward for milestone on a track. A
// milestone that was already claimed, or that the imported legacy level
// covers, fails with AlreadyClaimed.
func (s *Service) ClaimMilestone(ctx context.Context, userID string, kind TrackKind, key string, milestone int64) (*MilestoneClaim, error) {
	ctx, span := tracer.Start(ctx, "mastery.ClaimMilestone")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("kind", string(kind)),
		attribute.String("track_key", key),
		attribute.Int64("milestone", milestone),
	)

	if !kind.Valid() {
		return nil, errutil.BadRequest(fmt.Sprintf("unknown track kind %q", kind), nil)
	}
	reward, ok := RewardFor(milestone)
	if !ok {
		milestoneClaims.WithLabelValues("invalid").Inc()
		return nil, errutil.InvalidMilestone(fmt.Sprintf("%d is not a milestone", milestone))
	}

	norm := NormalizeKey(key)
	rule := s.rules.For(kind, norm)
	bit := milestoneBit(milestone)

	out := &MilestoneClaim{Kind: kind, Key: norm, Milestone: milestone, XP: reward.XP, Dust: reward.Dust}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		svc := s.WithTrx(tx)

		track, err := svc.track.FindOne(ctx, &Track{UserID: userID, Kind: kind, TrackKey: norm}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if track == nil {
			return errutil.NotCompleted(fmt.Sprintf("level %d not reached", milestone))
		}
		if track.ClaimedMask&bit != 0 || track.LegacyLevel == milestone {
			return errutil.AlreadyClaimed(fmt.Sprintf("milestone %d already claimed", milestone))
		}
		if LevelForXP(track.XP, rule.Divider) < milestone {
			return errutil.NotCompleted(fmt.Sprintf("level %d not reached", milestone))
		}

		res := tx.Model(&Track{}).
			Where("user_id = ? AND kind = ? AND track_key = ? AND (claimed_mask & ?) = 0", userID, kind, norm, bit).
			Updates(map[string]any{
				"claimed_mask": gorm.Expr("claimed_mask | ?", bit),
				"updated_at":   time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.AlreadyClaimed(fmt.Sprintf("milestone %d already claimed", milestone))
		}

		granted, err := svc.ledger.Record(ctx, userID, ledger.KindMasteryMilestone,
			ledger.MilestoneKey(string(kind), norm, milestone),
			map[string]any{"xp": reward.XP, "dust": reward.Dust})
		if err != nil {
			return err
		}
		if !granted {
			return errutil.AlreadyClaimed(fmt.Sprintf("milestone %d already claimed", milestone))
		}

		if _, err := svc.balance.Credit(ctx, userID, balance.Delta{XP: reward.XP, Dust: reward.Dust}); err != nil {
			return err
		}

		codes := []string{BadgeCode(kind, norm, milestone)}
		if kind == KindMember && milestone == 100 {
			codes = append(codes, UltimateBadge)
		}
		out.Badges, err = svc.badges.GrantAll(ctx, userID, badge.SourceMastery, codes...)
		return err
	})
	if err != nil {
		switch {
		case errutil.IsAlreadyClaimed(err):
			milestoneClaims.WithLabelValues("already_claimed").Inc()
		case errutil.IsNotCompleted(err):
			milestoneClaims.WithLabelValues("not_completed").Inc()
		default:
			logger.Ctx(ctx).Error("failed to claim milestone",
				zap.String("user_id", userID),
				zap.String("track_key", norm),
				zap.Int64("milestone", milestone),
				zap.Error(err),
			)
		}
		return nil, errutil.Datastore(err)
	}

	milestoneClaims.WithLabelValues("claimed").Inc()
	logger.Ctx(ctx).Info("milestone claimed",
		zap.String("user_id", userID),
		zap.String("kind", string(kind)),
		zap.String("track_key", norm),
		zap.Int64("milestone", milestone),
	)
	return out, nil
}

func (s *Service) GetTrack(ctx context.Context, userID string, kind TrackKind, key string) (*TrackView, error) {
	ctx, span := tracer.Start(ctx, "mastery.GetTrack")
	defer span.End()

	norm := NormalizeKey(key)
	track, err := s.track.FindOne(ctx, &Track{UserID: userID, Kind: kind, TrackKey: norm})
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	if track == nil {
		track = &Track{UserID: userID, Kind: kind, TrackKey: norm, DisplayKey: key}
	}
	return s.view(track), nil
}

// ListTracks returns every track the user has touched, ordered by kind then key.
func (s *Service) ListTracks(ctx context.Context, userID string) ([]*TrackView, error) {
	ctx, span := tracer.Start(ctx, "mastery.ListTracks")
	defer span.End()

	tracks, err := s.track.Find(ctx, &Track{UserID: userID})
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].Kind != tracks[j].Kind {
			return tracks[i].Kind < tracks[j].Kind
		}
		return tracks[i].TrackKey < tracks[j].TrackKey
	})

	out := make([]*TrackView, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, s.view(t))
	}
	return out, nil
}

func (s *Service) view(t *Track) *TrackView {
	rule := s.rules.For(t.Kind, t.TrackKey)
	level := LevelForXP(t.XP, rule.Divider)
	claimed := t.Claimed()

	v := &TrackView{
		Kind:       t.Kind,
		Key:        t.TrackKey,
		DisplayKey: t.DisplayKey,
		XP:         t.XP,
		Level:      level,
		XPToNext:   (level+1)*100*rule.Divider - t.XP,
		Claimed:    claimed,
		Claimable:  ClaimableMilestones(t.XP, claimed, t.LegacyLevel, rule.Divider),
	}
	if v.Claimed == nil {
		v.Claimed = []int64{}
	}
	for _, m := range Milestones {
		if m > level {
			v.NextMilestone = m
			break
		}
	}
	return v
}

// ImportLegacyLevel records the level a user held before XP-based tracks.
// It only takes effect once per track and reports whether it did.
func (s *Service) ImportLegacyLevel(ctx context.Context, userID string, kind TrackKind, key string, level int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "mastery.ImportLegacyLevel")
	defer span.End()

	if !kind.Valid() {
		return false, errutil.BadRequest(fmt.Sprintf("unknown track kind %q", kind), nil)
	}
	if level <= 0 {
		return false, errutil.BadRequest("legacy level must be > 0", nil)
	}

	norm := NormalizeKey(key)
	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Track{UserID: userID, Kind: kind, TrackKey: norm, DisplayKey: key}).Error; err != nil {
			return err
		}
		res := tx.Model(&Track{}).
			Where("user_id = ? AND kind = ? AND track_key = ? AND legacy_level = 0", userID, kind, norm).
			Updates(map[string]any{"legacy_level": level, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, errutil.Datastore(err)
	}
	return applied, nil
}
