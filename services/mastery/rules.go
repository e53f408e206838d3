package mastery

import (
	"fmt"

	"progression-engine/pkg/config"
)

type TrackKind string

const (
	KindMember TrackKind = "member"
	KindEra    TrackKind = "era"
)

func (k TrackKind) Valid() bool {
	return k == KindMember || k == KindEra
}

// Rule scales XP into a track. Divider stretches each level to 100×Divider
// XP. Aggregate tracks roll level cards from the whole catalog.
type Rule struct {
	Multiplier int64
	Divider    int64
	Aggregate  bool
}

var DefaultRule = Rule{Multiplier: 3, Divider: 1}

type ruleKey struct {
	kind TrackKind
	key  string
}

// TrackRules is the single place track scaling is decided.
type TrackRules struct {
	def       Rule
	overrides map[ruleKey]Rule
}

func NewTrackRules() *TrackRules {
	r := &TrackRules{def: DefaultRule, overrides: map[ruleKey]Rule{}}
	r.Set(KindMember, "OT7", Rule{Multiplier: 6, Divider: 7, Aggregate: true})
	return r
}

// ProvideTrackRules applies PROGRESSION.TRACKS on top of the built-in rules.
func ProvideTrackRules(cfg *config.Config) (*TrackRules, error) {
	r := NewTrackRules()
	for _, t := range cfg.Progression.Tracks {
		kind := TrackKind(t.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("track rule %q: unknown kind %q", t.Key, t.Kind)
		}
		if t.Multiplier <= 0 || t.Divider <= 0 {
			return nil, fmt.Errorf("track rule %s/%s: multiplier and divider must be > 0", t.Kind, t.Key)
		}
		r.Set(kind, t.Key, Rule{
			Multiplier: int64(t.Multiplier),
			Divider:    int64(t.Divider),
			Aggregate:  t.Aggregate,
		})
	}
	return r, nil
}

func (r *TrackRules) Set(kind TrackKind, key string, rule Rule) {
	r.overrides[ruleKey{kind, NormalizeKey(key)}] = rule
}

func (r *TrackRules) For(kind TrackKind, key string) Rule {
	if rule, ok := r.overrides[ruleKey{kind, NormalizeKey(key)}]; ok {
		return rule
	}
	return r.def
}
