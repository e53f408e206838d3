package quest

import (
	"context"
	"fmt"

	"progression-engine/pkg/celengine"
	"progression-engine/pkg/db/option"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/period"
	"progression-engine/pkg/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefinitionStore reads and maintains the quest catalog.
type DefinitionStore struct {
	db  *gorm.DB
	def repository.Repository[Definition]
}

func NewDefinitionStore(db *gorm.DB) *DefinitionStore {
	return &DefinitionStore{db: db, def: repository.ProvideStore[Definition](db)}
}

func (s *DefinitionStore) WithTrx(tx *gorm.DB) *DefinitionStore {
	return &DefinitionStore{db: tx, def: s.def.WithTrx(tx)}
}

func (s *DefinitionStore) Get(ctx context.Context, code string) (*Definition, error) {
	d, err := s.def.FindOne(ctx, &Definition{Code: code})
	return d, errutil.Datastore(err)
}

// ListActive returns the active definitions of p, ordered by code.
func (s *DefinitionStore) ListActive(ctx context.Context, p period.Period) ([]*Definition, error) {
	return s.list(ctx, option.Condition{Field: "period", Operator: option.EQ, Value: p})
}

func (s *DefinitionStore) ListActiveByGoal(ctx context.Context, goalType string) ([]*Definition, error) {
	return s.list(ctx, option.Condition{Field: "goal_type", Operator: option.EQ, Value: goalType})
}

func (s *DefinitionStore) list(ctx context.Context, cond option.Condition) ([]*Definition, error) {
	defs, err := s.def.Find(ctx, nil,
		option.ApplyOperator(
			option.Condition{Field: "active", Operator: option.EQ, Value: true},
			cond,
		),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "code",
			OrderBy: "ASC",
			Allow:   map[string]bool{"code": true},
		}),
	)
	if err != nil {
		return nil, errutil.Datastore(err)
	}
	return defs, nil
}

// conditionSchema mirrors the attributes AdvanceQuest evaluates conditions
// against.
var conditionSchema = map[string]any{
	"amount":    int64(0),
	"goal_type": "",
	"attrs":     map[string]any{},
}

// Upsert inserts or replaces definitions by code.
func (s *DefinitionStore) Upsert(ctx context.Context, defs ...*Definition) error {
	if len(defs) == 0 {
		return nil
	}
	for _, d := range defs {
		if d.Code == "" {
			return errutil.BadRequest("quest code is required", nil)
		}
		if !d.Period.Valid() {
			return errutil.BadRequest(fmt.Sprintf("quest %s: unknown period %q", d.Code, d.Period), nil)
		}
		if d.GoalValue <= 0 {
			return errutil.BadRequest(fmt.Sprintf("quest %s: goal_value must be > 0", d.Code), nil)
		}
		if d.RewardDust < 0 || d.RewardXP < 0 {
			return errutil.BadRequest(fmt.Sprintf("quest %s: rewards must be >= 0", d.Code), nil)
		}
		if err := celengine.ValidateCondition(d.Condition, conditionSchema); err != nil {
			return errutil.BadRequest(fmt.Sprintf("quest %s: invalid condition", d.Code), err)
		}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"period", "goal_type", "goal_value", "reward_dust", "reward_xp",
				"reward_badge", "reward_ticket", "condition_expr", "active", "updated_at",
			}),
		}).
		Create(&defs).Error
	return errutil.Datastore(err)
}
