package streak

import (
	"fmt"
	"slices"

	"progression-engine/pkg/period"
	"progression-engine/services/inventory"
)

const (
	// MaxCountBadge is the last count with its own per-period badge.
	MaxCountBadge = 10
)

var MilestoneCounts = []int64{10, 20, 30, 40, 50}

// Update reports the result of one RecordPeriodCompletion call. Changed is
// false when the key was already recorded or is older than the stored one.
type Update struct {
	Period    period.Period   `json:"period"`
	PeriodKey string          `json:"period_key"`
	Count     int64           `json:"count"`
	Changed   bool            `json:"changed"`
	Badges    []string        `json:"badges"`
	Item      *inventory.Item `json:"item,omitempty"`
}

func CountBadge(p period.Period, n int64) string {
	return fmt.Sprintf("streak_%s_%d", p, n)
}

func MilestoneBadge(p period.Period, n int64) string {
	return fmt.Sprintf("streak_%s_milestone_%d", p, n)
}

// badgesFor lists the badges a streak of n unlocks.
func badgesFor(p period.Period, n int64) (count string, milestone string) {
	if n >= 1 && n <= MaxCountBadge {
		count = CountBadge(p, n)
	}
	if slices.Contains(MilestoneCounts, n) {
		milestone = MilestoneBadge(p, n)
	}
	return count, milestone
}

type columns struct {
	count string
	key   string
}

func columnsFor(p period.Period) columns {
	if p == period.Weekly {
		return columns{count: "streak_weekly_count", key: "last_weekly_period_key"}
	}
	return columns{count: "streak_daily_count", key: "last_daily_period_key"}
}
