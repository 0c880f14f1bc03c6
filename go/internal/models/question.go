package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseQuestion is the authored, immutable content of a question. The live
// engine reads it and never writes it.
type BaseQuestion struct {
	ID       uuid.UUID    `json:"id"`
	Type     QuestionType `json:"type"`
	Topic    string       `json:"topic,omitempty"`
	Language string       `json:"language,omitempty"`
	Prompt   string       `json:"prompt"`
	Answer   string       `json:"answer,omitempty"`
	ImageRef string       `json:"image_ref,omitempty"`

	Clues      []string `json:"clues,omitempty"`       // CLUES
	Labels     []string `json:"labels,omitempty"`      // LABEL
	QuoteParts []string `json:"quote_parts,omitempty"` // QUOTE
	Items      []string `json:"items,omitempty"`       // ODD_ONE_OUT

	MatchLeft  []string    `json:"match_left,omitempty"` // MATCHING
	MatchRight []string    `json:"match_right,omitempty"`
	MatchPairs map[int]int `json:"match_pairs,omitempty"` // left index -> right index

	Choices       []string `json:"choices,omitempty"` // MCQ
	CorrectChoice int      `json:"correct_choice,omitempty"`

	OddIndex int `json:"odd_index,omitempty"` // ODD_ONE_OUT
}

// Elements returns how many revealable elements the question carries. Used by
// max-point calculations for reveal types.
func (q *BaseQuestion) Elements() int {
	switch q.Type {
	case QuestionTypeClues:
		return len(q.Clues)
	case QuestionTypeLabel:
		return len(q.Labels)
	case QuestionTypeQuote:
		return len(q.QuoteParts)
	case QuestionTypeMatching:
		return len(q.MatchPairs)
	}
	return 1
}

// BuzzCancellation records a player removed from the race, tagged with the
// reveal index active at cancellation time.
type BuzzCancellation struct {
	PlayerID string    `json:"player_id"`
	ClueIdx  int       `json:"clue_idx"`
	At       time.Time `json:"at"`
}

// BuzzerState is the ordered race queue for one question attempt.
type BuzzerState struct {
	Buzzed   []string           `json:"buzzed"` // insertion order = race order
	Canceled []BuzzCancellation `json:"canceled,omitempty"`
}

// Challenger tracks the enumeration bet for the team that claimed it.
type Challenger struct {
	TeamID uuid.UUID `json:"team_id"`
	Bet    int       `json:"bet"`
	Found  int       `json:"found"`
}

// GameQuestion is the live, per-round-instance record for a BaseQuestion.
// It is reset between attempts and never deleted while the round is live.
type GameQuestion struct {
	ID         uuid.UUID    `json:"id"`
	RoundID    uuid.UUID    `json:"round_id"`
	QuestionID uuid.UUID    `json:"question_id"`
	Type       QuestionType `json:"type"`
	ManagerID  string       `json:"manager_id,omitempty"`

	DateStart *time.Time `json:"date_start,omitempty"`
	DateEnd   *time.Time `json:"date_end,omitempty"`

	WinnerTeamID *uuid.UUID `json:"winner_team_id,omitempty"`
	Correct      *bool      `json:"correct,omitempty"`

	Revealed      int         `json:"revealed"`                 // reveal cursor for clue/label/quote types
	FoundElements []int       `json:"found_elements,omitempty"` // label/quote indices already credited
	SelectedItems []int       `json:"selected_items,omitempty"` // odd-one-out picks, MCQ choice
	Matches       map[int]int `json:"matches,omitempty"`        // confirmed matching pairs

	MistakeCounts map[uuid.UUID]int `json:"mistake_counts,omitempty"`
	ExcludedTeams []uuid.UUID       `json:"excluded_teams,omitempty"`

	Buzzer     *BuzzerState            `json:"buzzer,omitempty"`
	Challenger *Challenger             `json:"challenger,omitempty"`
	Players    map[string]PlayerStatus `json:"players,omitempty"`
}

// Ended reports whether this attempt has concluded.
func (q *GameQuestion) Ended() bool {
	return q.DateEnd != nil
}

// TeamExcluded reports whether a team has been locked out of further
// selections in this question.
func (q *GameQuestion) TeamExcluded(teamID uuid.UUID) bool {
	for _, id := range q.ExcludedTeams {
		if id == teamID {
			return true
		}
	}
	return false
}

// ElementFound reports whether a revealable element was already credited.
func (q *GameQuestion) ElementFound(idx int) bool {
	for _, i := range q.FoundElements {
		if i == idx {
			return true
		}
	}
	return false
}
