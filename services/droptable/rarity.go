package droptable

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

type Rarity string

const (
	Common    Rarity = "common"
	Rare      Rarity = "rare"
	Epic      Rarity = "epic"
	Legendary Rarity = "legendary"
)

var Rarities = []Rarity{Common, Rare, Epic, Legendary}

func ParseRarity(s string) (Rarity, error) {
	for _, r := range Rarities {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown rarity %q", s)
}

// AtLeastEpic reports whether r resets the pity counter.
func (r Rarity) AtLeastEpic() bool {
	return r == Epic || r == Legendary
}

// Weights are relative, they need not sum to 100.
type Weights struct {
	Common    float64
	Rare      float64
	Epic      float64
	Legendary float64
}

var (
	BaseWeights    = Weights{Common: 70, Rare: 22, Epic: 7, Legendary: 1}
	QuestWeights   = Weights{Common: 60, Rare: 28, Epic: 10, Legendary: 2}
	MasteryWeights = Weights{Common: 55, Rare: 30, Epic: 12, Legendary: 3}
	StreakWeights  = Weights{Common: 40, Rare: 35, Epic: 20, Legendary: 5}
)

const (
	quizXPPerPoint = 10
	quizMaxShift   = 20
)

// QuizWeights moves up to 20 points of weight off common as raw XP grows,
// one point per 10 XP, split 60/30/10 across rare, epic and legendary.
func QuizWeights(rawXP int64) Weights {
	if rawXP < 0 {
		rawXP = 0
	}
	shift := float64(rawXP / quizXPPerPoint)
	if shift > quizMaxShift {
		shift = quizMaxShift
	}
	w := BaseWeights
	w.Common -= shift
	w.Rare += shift * 0.6
	w.Epic += shift * 0.3
	w.Legendary += shift * 0.1
	return w
}

func (w Weights) Of(r Rarity) float64 {
	switch r {
	case Common:
		return w.Common
	case Rare:
		return w.Rare
	case Epic:
		return w.Epic
	case Legendary:
		return w.Legendary
	}
	return 0
}

func (w Weights) Total() float64 {
	return w.Common + w.Rare + w.Epic + w.Legendary
}

// Pick maps u in [0,1) onto a tier.
func (w Weights) Pick(u float64) Rarity {
	total := w.Total()
	if total <= 0 {
		return Common
	}
	target := u * total
	var cum float64
	last := Common
	for _, r := range Rarities {
		weight := w.Of(r)
		if weight <= 0 {
			continue
		}
		cum += weight
		last = r
		if target < cum {
			return r
		}
	}
	return last
}

// PickHigh chooses between epic and legendary by their relative weights.
func (w Weights) PickHigh(u float64) Rarity {
	total := w.Epic + w.Legendary
	if total <= 0 || u*total < w.Epic {
		return Epic
	}
	return Legendary
}

// HashUnit maps key onto [0,1) from the first 8 bytes of its SHA-256.
func HashUnit(key string) float64 {
	sum := sha256.Sum256([]byte(key))
	return float64(binary.BigEndian.Uint64(sum[:8])>>11) / (1 << 53)
}

// DeterministicRarity is for offline catalog assignment only. The same asset
// id always yields the same tier.
func DeterministicRarity(assetID string, w Weights) Rarity {
	return w.Pick(HashUnit(assetID))
}

// AssignRarities fills in rarities from asset ids. Cards that already carry
// a rarity keep it unless overwrite is set.
func AssignRarities(cards []Card, w Weights, overwrite bool) []Card {
	out := make([]Card, len(cards))
	for i, c := range cards {
		if overwrite || c.Rarity == "" {
			key := c.AssetID
			if key == "" {
				key = c.CardID
			}
			c.Rarity = DeterministicRarity(key, w)
		}
		out[i] = c
	}
	return out
}
