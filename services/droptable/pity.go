package droptable

import (
	"context"
	"time"

	"progression-engine/pkg/errutil"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PityStore keeps the per-user count of consecutive sub-epic rolls.
type PityStore interface {
	// Advance applies one roll whose natural tier is natural. It returns
	// forced=true when the counter had reached threshold and canForce is set;
	// the counter is then reset and the caller must upgrade the roll to epic
	// or better. Without canForce a due trigger is kept for a later roll.
	// Writes go through the bound transaction and roll back with it.
	Advance(ctx context.Context, userID string, natural Rarity, threshold int, canForce bool) (bool, error)
	Get(ctx context.Context, userID string) (int64, error)
	WithTrx(tx *gorm.DB) PityStore
}

type PityCounter struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:64"`
	Misses    int64     `gorm:"column:misses;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (PityCounter) TableName() string { return "pity_counters" }

// DBPityStore keeps the counter in the database. Each branch is a single
// conditional UPDATE so concurrent rolls serialize on the row.
type DBPityStore struct {
	db *gorm.DB
}

func NewDBPityStore(db *gorm.DB) *DBPityStore {
	return &DBPityStore{db: db}
}

func (s *DBPityStore) Advance(ctx context.Context, userID string, natural Rarity, threshold int, canForce bool) (bool, error) {
	var forced bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&PityCounter{UserID: userID}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		if canForce {
			res := tx.Model(&PityCounter{}).
				Where("user_id = ? AND misses >= ?", userID, threshold).
				Updates(map[string]any{"misses": 0, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				forced = true
				return nil
			}
		}

		next := gorm.Expr("misses + 1")
		if natural.AtLeastEpic() {
			next = gorm.Expr("0")
		}
		return tx.Model(&PityCounter{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{"misses": next, "updated_at": now}).Error
	})
	if err != nil {
		return false, errutil.Datastore(err)
	}
	return forced, nil
}

func (s *DBPityStore) Get(ctx context.Context, userID string) (int64, error) {
	var c PityCounter
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&c)
	if res.Error != nil {
		return 0, errutil.Datastore(res.Error)
	}
	return c.Misses, nil
}

func (s *DBPityStore) WithTrx(tx *gorm.DB) PityStore {
	return &DBPityStore{db: tx}
}
