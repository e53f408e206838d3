package inventory

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

type SourceType string

const (
	SourceQuiz            SourceType = "quiz"
	SourceQuestStreaming  SourceType = "quest_streaming"
	SourceQuestQuiz       SourceType = "quest_quiz"
	SourceMasteryLevel    SourceType = "mastery_level"
	SourceStreakMilestone SourceType = "streak_milestone"
)

// Source describes why an item was granted. Each SourceType has exactly one
// concrete variant.
type Source interface {
	Type() SourceType
}

type QuizSource struct {
	QuizID string `json:"quiz_id"`
	RawXP  int64  `json:"raw_xp"`
}

func (QuizSource) Type() SourceType { return SourceQuiz }

type QuestSource struct {
	QuestCode string `json:"quest_code"`
	PeriodKey string `json:"period_key"`
	Streaming bool   `json:"-"`
}

func (s QuestSource) Type() SourceType {
	if s.Streaming {
		return SourceQuestStreaming
	}
	return SourceQuestQuiz
}

type MasteryLevelSource struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Level int64  `json:"level"`
}

func (MasteryLevelSource) Type() SourceType { return SourceMasteryLevel }

type StreakSource struct {
	Period string `json:"period"`
	Count  int64  `json:"count"`
}

func (StreakSource) Type() SourceType { return SourceStreakMilestone }

func EncodeSource(src Source) (SourceType, datatypes.JSON, error) {
	if src == nil {
		return "", nil, fmt.Errorf("inventory: nil source")
	}
	b, err := json.Marshal(src)
	if err != nil {
		return "", nil, fmt.Errorf("inventory: encode %s source: %w", src.Type(), err)
	}
	return src.Type(), datatypes.JSON(b), nil
}

func DecodeSource(t SourceType, data datatypes.JSON) (Source, error) {
	var (
		src Source
		err error
	)
	switch t {
	case SourceQuiz:
		var s QuizSource
		err = json.Unmarshal(data, &s)
		src = s
	case SourceQuestStreaming, SourceQuestQuiz:
		var s QuestSource
		err = json.Unmarshal(data, &s)
		s.Streaming = t == SourceQuestStreaming
		src = s
	case SourceMasteryLevel:
		var s MasteryLevelSource
		err = json.Unmarshal(data, &s)
		src = s
	case SourceStreakMilestone:
		var s StreakSource
		err = json.Unmarshal(data, &s)
		src = s
	default:
		return nil, fmt.Errorf("inventory: unknown source type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: decode %s source: %w", t, err)
	}
	return src, nil
}
