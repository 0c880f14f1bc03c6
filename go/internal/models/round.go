package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType tags both rounds and questions. A round holds questions of a
// single type, except SPECIAL rounds which nest sections of mixed types.
type QuestionType string

const (
	QuestionTypeBasic       QuestionType = "BASIC"
	QuestionTypeBuzzer      QuestionType = "BUZZER"
	QuestionTypeClues       QuestionType = "CLUES"
	QuestionTypeEnumeration QuestionType = "ENUMERATION"
	QuestionTypeLabel       QuestionType = "LABEL"
	QuestionTypeQuote       QuestionType = "QUOTE"
	QuestionTypeMatching    QuestionType = "MATCHING"
	QuestionTypeMCQ         QuestionType = "MCQ"
	QuestionTypeOddOneOut   QuestionType = "ODD_ONE_OUT"
	QuestionTypeSpecial     QuestionType = "SPECIAL"
)

// RoundSection is one themed section of a SPECIAL round.
type RoundSection struct {
	Title       string      `json:"title"`
	QuestionIDs []uuid.UUID `json:"question_ids"`
}

// Round is owned by its Game. Reward parameters are authored during editing;
// Order, DateStart/DateEnd and MaxPoints are written by the orchestrator.
type Round struct {
	ID          uuid.UUID    `json:"id"`
	GameID      uuid.UUID    `json:"game_id"`
	Type        QuestionType `json:"type"`
	QuestionIDs []uuid.UUID  `json:"question_ids"`

	// Reward parameters. RewardPerQuestion applies to single-winner types,
	// RewardPerElement to reveal types, MistakePenalty (negative) to
	// matching and odd-one-out.
	RewardPerQuestion int `json:"reward_per_question,omitempty"`
	RewardPerElement  int `json:"reward_per_element,omitempty"`
	MistakePenalty    int `json:"mistake_penalty,omitempty"`
	MaxMistakes       int `json:"max_mistakes,omitempty"`

	// ThinkTimeSec is the countdown loaded into the timer when a question
	// of this round starts.
	ThinkTimeSec int `json:"think_time_sec,omitempty"`

	// Live state, written once the round starts.
	Order          int        `json:"order,omitempty"` // monotonically increasing across the game
	DateStart      *time.Time `json:"date_start,omitempty"`
	DateEnd        *time.Time `json:"date_end,omitempty"`
	MaxPoints      *int       `json:"max_points,omitempty"` // completion-rate policy only, set at round start
	QuestionCursor int        `json:"question_cursor"`

	// SPECIAL rounds only.
	Sections        []RoundSection `json:"sections,omitempty"`
	SectionIdx      int            `json:"section_idx"`
	EliminatedTeams []uuid.UUID    `json:"eliminated_teams,omitempty"`
}

// Started reports whether the round has been selected and started.
func (r *Round) Started() bool {
	return r.DateStart != nil
}

// QuestionCount is the number of questions this round plays through,
// including the sub-questions of SPECIAL sections.
func (r *Round) QuestionCount() int {
	if r.Type != QuestionTypeSpecial {
		return len(r.QuestionIDs)
	}
	n := 0
	for _, s := range r.Sections {
		n += len(s.QuestionIDs)
	}
	return n
}
