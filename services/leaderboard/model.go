package leaderboard

import "time"

// Entry keeps a user's best score for a period. ScoredAt moves only when the
// score improves and breaks ties in favour of whoever got there first.
type Entry struct {
	PeriodKey   string    `gorm:"column:period_key;primaryKey;size:32;index:idx_leaderboard_rank,priority:1"`
	UserID      string    `gorm:"column:user_id;primaryKey;size:64"`
	Score       int64     `gorm:"column:score;not null;default:0;index:idx_leaderboard_rank,priority:2"`
	DisplayName string    `gorm:"column:display_name;size:128;not null;default:''"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512;not null;default:''"`
	ScoredAt    time.Time `gorm:"column:scored_at"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Entry) TableName() string { return "leaderboard_entries" }

type Submission struct {
	PeriodKey   string
	UserID      string
	Score       int64
	DisplayName string
	AvatarURL   string
}

type Ranked struct {
	Rank int64 `json:"rank"`
	*Entry
}
