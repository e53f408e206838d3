package balance

import "time"

// Wallet holds a user's currencies and streak counters. It is created on
// first write and never deleted.
type Wallet struct {
	UserID              string    `gorm:"column:user_id;primaryKey;size:64"`
	XP                  int64     `gorm:"column:xp;not null;default:0"`
	Dust                int64     `gorm:"column:dust;not null;default:0"`
	StreakDailyCount    int64     `gorm:"column:streak_daily_count;not null;default:0"`
	StreakWeeklyCount   int64     `gorm:"column:streak_weekly_count;not null;default:0"`
	LastDailyPeriodKey  string    `gorm:"column:last_daily_period_key;size:32;not null;default:''"`
	LastWeeklyPeriodKey string    `gorm:"column:last_weekly_period_key;size:32;not null;default:''"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

type Delta struct {
	Dust int64
	XP   int64
}

func (d Delta) IsZero() bool { return d.Dust == 0 && d.XP == 0 }
