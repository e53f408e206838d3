package mastery

import "time"

// Track is one user's progress on a (kind, key) mastery track. XP only grows.
// ClaimedMask holds one bit per entry of Milestones.
type Track struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:64"`
	Kind        TrackKind `gorm:"column:kind;primaryKey;size:16"`
	TrackKey    string    `gorm:"column:track_key;primaryKey;size:128"`
	DisplayKey  string    `gorm:"column:display_key;size:191;not null;default:''"`
	XP          int64     `gorm:"column:xp;not null;default:0"`
	LegacyLevel int64     `gorm:"column:legacy_level;not null;default:0"`
	ClaimedMask int64     `gorm:"column:claimed_mask;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (Track) TableName() string { return "mastery_tracks" }

func (t *Track) Claimed() []int64 {
	return milestonesIn(t.ClaimedMask)
}

// XPGrant names the tracks a single scored event feeds.
type XPGrant struct {
	Members []string
	Eras    []string
	RawXP   int64
}

type LevelAward struct {
	Kind   TrackKind `json:"kind"`
	Key    string    `json:"key"`
	Level  int64     `json:"level"`
	ItemID string    `json:"item_id"`
	CardID string    `json:"card_id"`
	Rarity string    `json:"rarity"`
}

type MilestoneClaim struct {
	Kind      TrackKind `json:"kind"`
	Key       string    `json:"key"`
	Milestone int64     `json:"milestone"`
	XP        int64     `json:"xp"`
	Dust      int64     `json:"dust"`
	Badges    []string  `json:"badges"`
}

type TrackView struct {
	Kind          TrackKind `json:"kind"`
	Key           string    `json:"key"`
	DisplayKey    string    `json:"display_key"`
	XP            int64     `json:"xp"`
	Level         int64     `json:"level"`
	XPToNext      int64     `json:"xp_to_next"`
	NextMilestone int64     `json:"next_milestone"`
	Claimed       []int64   `json:"claimed"`
	Claimable     []int64   `json:"claimable"`
}
