package mastery

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Milestones are the level thresholds that carry a one-time reward.
var Milestones = []int64{5, 10, 25, 50, 100}

type MilestoneReward struct {
	XP   int64
	Dust int64
}

var milestoneRewards = map[int64]MilestoneReward{
	5:   {XP: 50, Dust: 100},
	10:  {XP: 100, Dust: 250},
	25:  {XP: 250, Dust: 600},
	50:  {XP: 500, Dust: 1500},
	100: {XP: 1000, Dust: 5000},
}

const UltimateBadge = "mastery_ultimate"

func RewardFor(milestone int64) (MilestoneReward, bool) {
	r, ok := milestoneRewards[milestone]
	return r, ok
}

func IsMilestone(m int64) bool {
	return slices.Contains(Milestones, m)
}

func milestoneBit(m int64) int64 {
	i := slices.Index(Milestones, m)
	if i < 0 {
		return 0
	}
	return 1 << i
}

func maskOf(claimed []int64) int64 {
	var mask int64
	for _, m := range claimed {
		mask |= milestoneBit(m)
	}
	return mask
}

func milestonesIn(mask int64) []int64 {
	var out []int64
	for i, m := range Milestones {
		if mask&(1<<i) != 0 {
			out = append(out, m)
		}
	}
	return out
}

func LevelForXP(xp, divider int64) int64 {
	if divider < 1 {
		divider = 1
	}
	if xp <= 0 {
		return 0
	}
	return xp / (100 * divider)
}

// ClaimableMilestones returns the reached milestones that are neither
// claimed nor equal to legacyLevel, ascending.
func ClaimableMilestones(xp int64, claimed []int64, legacyLevel, divider int64) []int64 {
	level := LevelForXP(xp, divider)
	out := []int64{}
	for _, m := range Milestones {
		if m > level || m == legacyLevel || slices.Contains(claimed, m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeKey lowercases key and collapses every run of other characters
// into one underscore.
func NormalizeKey(key string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(key), "_")
	return strings.Trim(s, "_")
}

func BadgeCode(kind TrackKind, key string, milestone int64) string {
	return fmt.Sprintf("mastery_%s_%s_%d", kind, NormalizeKey(key), milestone)
}
