package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type Kind string

const (
	KindMasteryMilestone    Kind = "mastery_milestone"
	KindMasteryLevel        Kind = "mastery_level"
	KindQuestPeriodComplete Kind = "quest_period_complete"
	KindScoringEvent        Kind = "scoring_event"
)

// Entry is an idempotency record: its existence means the reward under
// RewardKey was granted to UserID. Entries are never updated or deleted.
type Entry struct {
	ID        string         `gorm:"column:id;primaryKey;size:32"`
	UserID    string         `gorm:"column:user_id;size:64;not null;uniqueIndex:ux_reward_ledger_user_key,priority:1"`
	Kind      Kind           `gorm:"column:kind;size:32;not null;index"`
	RewardKey string         `gorm:"column:reward_key;size:191;not null;uniqueIndex:ux_reward_ledger_user_key,priority:2"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	Hash      string         `gorm:"column:hash;size:64;not null"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (Entry) TableName() string { return "reward_ledger_entries" }

type EntryParams struct {
	EntryID   string
	UserID    string
	Kind      Kind
	RewardKey string
	Metadata  datatypes.JSON
	CreatedAt time.Time
}

func NewEntry(p EntryParams) *Entry {
	e := &Entry{
		ID:        p.EntryID,
		UserID:    p.UserID,
		Kind:      p.Kind,
		RewardKey: p.RewardKey,
		Metadata:  p.Metadata,
		CreatedAt: p.CreatedAt,
	}
	e.Hash = e.GenerateHash()
	return e
}

func (e *Entry) HashFields() map[string]string {
	return map[string]string{
		"id":         e.ID,
		"user_id":    e.UserID,
		"kind":       string(e.Kind),
		"reward_key": e.RewardKey,
		"metadata":   canonicalJSON(e.Metadata),
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// canonicalJSON re-encodes raw with sorted keys and no whitespace, so a
// jsonb column that reorders or reformats the document hashes the same.
// Invalid JSON is hashed as is.
func canonicalJSON(raw datatypes.JSON) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}

func (e *Entry) GenerateHash() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Verify reports whether the stored hash still matches the entry.
func (e *Entry) Verify() bool {
	return e.Hash == e.GenerateHash()
}

func MilestoneKey(kind, key string, milestone int64) string {
	return fmt.Sprintf("mastery:%s:%s:milestone:%d", kind, key, milestone)
}

func LevelKey(kind, key string, level int64) string {
	return fmt.Sprintf("mastery:%s:%s:level:%d", kind, key, level)
}

func PeriodCompletionKey(period, periodKey string) string {
	return fmt.Sprintf("quest:%s:%s:complete", period, periodKey)
}

// EventKey identifies an externally scored event so it is applied once.
func EventKey(eventID string) string {
	return "event:" + eventID
}
