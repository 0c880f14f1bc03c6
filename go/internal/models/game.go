package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus defines the top-level lifecycle status of a game.
type GameStatus string

const (
	GameStatusEdit           GameStatus = "EDIT"
	GameStatusStart          GameStatus = "START"
	GameStatusHome           GameStatus = "HOME"
	GameStatusRoundStart     GameStatus = "ROUND_START"
	GameStatusQuestionActive GameStatus = "QUESTION_ACTIVE"
	GameStatusQuestionEnd    GameStatus = "QUESTION_END"
	GameStatusRoundEnd       GameStatus = "ROUND_END"
	GameStatusSpecial        GameStatus = "SPECIAL"
	GameStatusEnd            GameStatus = "END"
)

// GameKind selects how questions are drawn for each round.
type GameKind string

const (
	GameKindFixedRounds GameKind = "FIXED_ROUNDS"
	GameKindRandomPool  GameKind = "RANDOM_POOL"
)

// ScorePolicy selects how round performance is scored, fixed per game at creation.
type ScorePolicy string

const (
	ScorePolicyRanking        ScorePolicy = "RANKING"
	ScorePolicyCompletionRate ScorePolicy = "COMPLETION_RATE"
)

// Game is the top-level record. It is mutated only through state-machine
// transitions and becomes read-only once Status reaches END.
type Game struct {
	ID                  uuid.UUID    `json:"id"`
	Status              GameStatus   `json:"status"`
	Kind                GameKind     `json:"kind"`
	ScorePolicy         ScorePolicy  `json:"score_policy"`
	OrganizerID         string       `json:"organizer_id"`
	MaxPlayers          int          `json:"max_players"`
	RoundIDs            []uuid.UUID  `json:"round_ids"`
	TeamIDs             []uuid.UUID  `json:"team_ids"` // creation order, used as the stable tie-break
	CurrentRoundID      *uuid.UUID   `json:"current_round_id,omitempty"`
	CurrentQuestionID   *uuid.UUID   `json:"current_question_id,omitempty"`
	CurrentQuestionType QuestionType `json:"current_question_type,omitempty"`
	RewardsTable        []int        `json:"rewards_table,omitempty"` // ranking policy, e.g. [3,2,1]
	RoundsPlayed        int          `json:"rounds_played"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Ended reports whether the game is archived.
func (g *Game) Ended() bool {
	return g.Status == GameStatusEnd
}

// InRound reports whether the game is inside a round's question loop.
func (g *Game) InRound() bool {
	switch g.Status {
	case GameStatusRoundStart, GameStatusQuestionActive, GameStatusQuestionEnd, GameStatusSpecial:
		return true
	}
	return false
}

// Team groups players. Creation order of teams is significant: tied rank
// buckets list teams in that order.
type Team struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	Name      string    `json:"name"`
	PlayerIDs []string  `json:"player_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// PlayerStatus is the per-question status shown on every client.
type PlayerStatus string

const (
	PlayerStatusIdle   PlayerStatus = "IDLE"
	PlayerStatusActive PlayerStatus = "ACTIVE"
	PlayerStatusFocus  PlayerStatus = "FOCUS"
)
