package scoring

import "progression-engine/pkg/taskname"

const (
	TypeQuizCompleted = taskname.ScoringQuizCompleted
	TypeStreamLogged  = taskname.ScoringStreamLogged
)

// Goal types advanced by scored events.
const (
	GoalQuizCompleted = "quiz_completed"
	GoalQuizCorrect   = "quiz_correct"
	GoalStreamMinutes = "stream_minutes"
)

// QuizCompletedPayload is published once per finished quiz. EventID must be
// unique per quiz attempt.
type QuizCompletedPayload struct {
	EventID string   `json:"event_id"`
	UserID  string   `json:"user_id"`
	QuizID  string   `json:"quiz_id"`
	Members []string `json:"members,omitempty"`
	Eras    []string `json:"eras,omitempty"`
	RawXP   int64    `json:"raw_xp"`
	Correct int64    `json:"correct"`
	// Profile fields shown on the leaderboards.
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
}

type StreamLoggedPayload struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Minutes int64  `json:"minutes"`
	Source  string `json:"source"`
	TraceID string `json:"trace_id,omitempty"`
}
