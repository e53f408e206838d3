package badge

import "time"

// Grant records that a user owns a badge. One row per (user, badge).
type Grant struct {
	ID        string    `gorm:"column:id;primaryKey;size:32"`
	UserID    string    `gorm:"column:user_id;size:64;not null;uniqueIndex:ux_badge_grants_user_badge,priority:1"`
	BadgeCode string    `gorm:"column:badge_code;size:191;not null;uniqueIndex:ux_badge_grants_user_badge,priority:2"`
	Source    string    `gorm:"column:source;size:64;not null"`
	GrantedAt time.Time `gorm:"column:granted_at"`
}

func (Grant) TableName() string { return "badge_grants" }

const (
	SourceMastery = "mastery"
	SourceQuest   = "quest"
	SourceStreak  = "streak"
)
