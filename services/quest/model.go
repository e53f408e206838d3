package quest

import (
	"strings"
	"time"

	"progression-engine/pkg/period"
	"progression-engine/services/inventory"
	"progression-engine/services/streak"
)

// Definition is a quest from the externally supplied catalog. Condition is an
// optional CEL expression over amount, goal_type and attrs.
type Definition struct {
	Code         string        `gorm:"column:code;primaryKey;size:64" mapstructure:"code"`
	Period       period.Period `gorm:"column:period;size:16;not null;index:idx_quest_definitions_period_active,priority:1" mapstructure:"period"`
	GoalType     string        `gorm:"column:goal_type;size:64;not null;index" mapstructure:"goal_type"`
	GoalValue    int64         `gorm:"column:goal_value;not null" mapstructure:"goal_value"`
	RewardDust   int64         `gorm:"column:reward_dust;not null;default:0" mapstructure:"reward_dust"`
	RewardXP     int64         `gorm:"column:reward_xp;not null;default:0" mapstructure:"reward_xp"`
	RewardBadge  string        `gorm:"column:reward_badge;size:191;not null;default:''" mapstructure:"reward_badge"`
	RewardTicket bool          `gorm:"column:reward_ticket;not null" mapstructure:"reward_ticket"`
	Condition    string        `gorm:"column:condition_expr;size:1024;not null;default:''" mapstructure:"condition"`
	Active       bool          `gorm:"column:active;not null;index:idx_quest_definitions_period_active,priority:2" mapstructure:"active"`
	CreatedAt    time.Time     `gorm:"column:created_at"`
	UpdatedAt    time.Time     `gorm:"column:updated_at"`
}

func (Definition) TableName() string { return "quest_definitions" }

// Streaming reports whether the quest tracks a streaming goal.
func (d *Definition) Streaming() bool {
	return strings.HasPrefix(d.GoalType, "stream_")
}

// Progress is one user's state on one quest for one period. GoalValue is
// the definition's goal when the row was created.
type Progress struct {
	UserID    string        `gorm:"column:user_id;primaryKey;size:64"`
	QuestCode string        `gorm:"column:quest_code;primaryKey;size:64"`
	PeriodKey string        `gorm:"column:period_key;primaryKey;size:32"`
	Period    period.Period `gorm:"column:period;size:16;not null"`
	GoalValue int64         `gorm:"column:goal_value;not null"`
	Progress  int64         `gorm:"column:progress;not null;default:0"`
	Completed bool          `gorm:"column:completed;not null;default:false"`
	Claimed   bool          `gorm:"column:claimed;not null;default:false"`
	CreatedAt time.Time     `gorm:"column:created_at"`
	UpdatedAt time.Time     `gorm:"column:updated_at"`
}

func (Progress) TableName() string { return "quest_progress" }

type AdvanceRequest struct {
	UserID     string
	GoalType   string
	Amount     int64
	Attributes map[string]any
}

type ClaimResult struct {
	QuestCode      string          `json:"quest_code"`
	PeriodKey      string          `json:"period_key"`
	Dust           int64           `json:"dust"`
	XP             int64           `json:"xp"`
	Badges         []string        `json:"badges"`
	Item           *inventory.Item `json:"item,omitempty"`
	PeriodComplete bool            `json:"period_complete"`
	Streak         *streak.Update  `json:"streak,omitempty"`
}

func PeriodBadge(p period.Period) string {
	return "quests_" + string(p) + "_complete"
}
