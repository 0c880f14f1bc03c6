package events

import (
	"encoding/json"
	"time"
)

// Type identifies a committed engine transition.
type Type string

const (
	TypeGameStatusChanged Type = "GameStatusChanged"
	TypeRoundStarted      Type = "RoundStarted"
	TypeQuestionStarted   Type = "QuestionStarted"
	TypeBuzzerChanged     Type = "BuzzerChanged"
	TypeTimerChanged      Type = "TimerChanged"
	TypeAnswerJudged      Type = "AnswerJudged"
	TypeElementRevealed   Type = "ElementRevealed"
	TypeQuestionReset     Type = "QuestionReset"
	TypeScoreUpdated      Type = "ScoreUpdated"
	TypeRoundEnded        Type = "RoundEnded"
	TypeGameEnded         Type = "GameEnded"
)

// Envelope wraps a committed event for transport. Within one document's
// stream, envelopes are delivered in commit order.
type Envelope struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// GameStatusChangedPayload is the payload for a GameStatusChanged event.
type GameStatusChangedPayload struct {
	GameID string `json:"game_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// RoundStartedPayload is the payload for a RoundStarted event.
type RoundStartedPayload struct {
	RoundID   string    `json:"round_id"`
	RoundType string    `json:"round_type"`
	Order     int       `json:"order"`
	StartedAt time.Time `json:"started_at"`
	MaxPoints *int      `json:"max_points,omitempty"`
}

// QuestionStartedPayload is the payload for a QuestionStarted event.
type QuestionStartedPayload struct {
	RoundID      string    `json:"round_id"`
	QuestionID   string    `json:"question_id"`
	QuestionType string    `json:"question_type"`
	StartedAt    time.Time `json:"started_at"`
	ThinkTimeSec int       `json:"think_time_sec"`
}

// BuzzerChangedPayload is the payload for a BuzzerChanged event. Head is the
// current first player in the race queue, empty when the queue is empty. The
// organizer UI triggers exactly one side effect per head change.
type BuzzerChangedPayload struct {
	QuestionID string   `json:"question_id"`
	Head       string   `json:"head,omitempty"`
	Buzzed     []string `json:"buzzed"`
}

// TimerChangedPayload is the payload for a TimerChanged event.
type TimerChangedPayload struct {
	Status       string    `json:"status"`
	DurationSec  int       `json:"duration_sec"`
	RemainingSec int       `json:"remaining_sec"`
	Authorized   bool      `json:"authorized"`
	ManagedBy    string    `json:"managed_by,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// AnswerJudgedPayload is the payload for an AnswerJudged event.
type AnswerJudgedPayload struct {
	QuestionID   string    `json:"question_id"`
	WinnerTeamID string    `json:"winner_team_id,omitempty"`
	Correct      bool      `json:"correct"`
	Reward       int       `json:"reward"`
	JudgedAt     time.Time `json:"judged_at"`
}

// ScoreUpdatedPayload is the payload for a ScoreUpdated event.
type ScoreUpdatedPayload struct {
	RoundID string         `json:"round_id"`
	Scores  map[string]int `json:"scores"`
}

// RoundEndedPayload is the payload for a RoundEnded event.
type RoundEndedPayload struct {
	RoundID string    `json:"round_id"`
	EndedAt time.Time `json:"ended_at"`
}

// GameEndedPayload is the payload for a GameEnded event.
type GameEndedPayload struct {
	GameID  string    `json:"game_id"`
	EndedAt time.Time `json:"ended_at"`
}
