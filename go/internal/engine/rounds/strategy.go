// Package rounds holds the round orchestrator and one strategy per question
// type. The strategies share one narrow interface layered on the chooser,
// buzzer, timer and score primitives; each type's variance stays local to its
// file.
package rounds

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/engine/score"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// ActionKind identifies one organizer or player command routed to the active
// strategy.
type ActionKind string

const (
	ActionBuzz           ActionKind = "BUZZ"
	ActionAnswer         ActionKind = "ANSWER"          // organizer judges the current answer
	ActionValidateHead   ActionKind = "VALIDATE_HEAD"   // buzzer types
	ActionInvalidateHead ActionKind = "INVALIDATE_HEAD" // buzzer types
	ActionReveal         ActionKind = "REVEAL"          // next clue/label/quote element
	ActionSelectChoice   ActionKind = "SELECT_CHOICE"   // MCQ
	ActionSubmitMatches  ActionKind = "SUBMIT_MATCHES"  // matching
	ActionSelectItem     ActionKind = "SELECT_ITEM"     // odd-one-out pick, label/quote credit
	ActionChallenge      ActionKind = "CHALLENGE"       // enumeration bet
)

// Action carries the type-specific identifying arguments of a command.
type Action struct {
	Kind     ActionKind  `json:"kind"`
	PlayerID string      `json:"player_id,omitempty"`
	TeamID   uuid.UUID   `json:"team_id,omitempty"`
	Correct  bool        `json:"correct,omitempty"`
	Index    int         `json:"index,omitempty"`
	Bet      int         `json:"bet,omitempty"`
	Matches  map[int]int `json:"matches,omitempty"`
}

// Outcome reports how a handled action concluded the question. A nil Outcome
// means the question stays active.
type Outcome struct {
	Winner  *uuid.UUID
	Correct bool
	Reward  int
}

// Env bundles the documents one question transaction operates on. The
// orchestrator loads it, hands it to the strategy, and writes back whatever
// changed inside the same transaction.
type Env struct {
	Tx      store.Tx
	Game    *models.Game
	Round   *models.Round
	Base    *models.BaseQuestion
	Live    *models.GameQuestion
	Teams   []models.Team
	Score   *models.RoundScore
	Chooser *models.Chooser
	Timer   *models.Timer
}

// Strategy is the per-question-type implementation surface.
type Strategy interface {
	Type() models.QuestionType

	// Prepare resets per-player status and type-specific sub-state for a
	// fresh attempt. The orchestrator has already stamped DateStart and
	// reloaded the countdown.
	Prepare(env *Env) error

	// Handle applies one command. A non-nil Outcome ends the question.
	Handle(env *Env, act Action) (*Outcome, error)

	// Expire concludes the question when the countdown ends with nobody
	// answering; equivalent to a wrong answer.
	Expire(env *Env) (*Outcome, error)

	// MaxPoints is the theoretical per-round maximum a team could earn,
	// used only under the completion-rate policy.
	MaxPoints(r *models.Round, bases []*models.BaseQuestion) int
}

func errUnsupported(t models.QuestionType, kind ActionKind) error {
	return fmt.Errorf("%w: %s does not support %s", store.ErrPrecondition, t, kind)
}

// award moves points for one team and stamps a progress entry for all teams.
func (e *Env) award(teamID uuid.UUID, delta int) {
	score.Award(e.Score, e.Live.QuestionID, teamID, delta)
}

// teamOf resolves the team a player belongs to.
func (e *Env) teamOf(playerID string) (uuid.UUID, bool) {
	for _, t := range e.Teams {
		for _, p := range t.PlayerIDs {
			if p == playerID {
				return t.ID, true
			}
		}
	}
	return uuid.Nil, false
}

// setAllPlayers stamps every player of the game with one status.
func (e *Env) setAllPlayers(st models.PlayerStatus) {
	if e.Live.Players == nil {
		e.Live.Players = make(map[string]models.PlayerStatus)
	}
	for _, t := range e.Teams {
		for _, p := range t.PlayerIDs {
			e.Live.Players[p] = st
		}
	}
}

// splitPlayers marks the active team's players ACTIVE and everyone else IDLE.
func (e *Env) splitPlayers(activeTeam uuid.UUID) {
	if e.Live.Players == nil {
		e.Live.Players = make(map[string]models.PlayerStatus)
	}
	for _, t := range e.Teams {
		st := models.PlayerStatusIdle
		if t.ID == activeTeam {
			st = models.PlayerStatusActive
		}
		for _, p := range t.PlayerIDs {
			e.Live.Players[p] = st
		}
	}
}

// mistake bumps the per-round and per-question mistake counters.
func (e *Env) mistake(teamID uuid.UUID) int {
	if e.Live.MistakeCounts == nil {
		e.Live.MistakeCounts = make(map[uuid.UUID]int)
	}
	e.Live.MistakeCounts[teamID]++
	if e.Score.Mistakes == nil {
		e.Score.Mistakes = make(map[uuid.UUID]int)
	}
	e.Score.Mistakes[teamID]++
	return e.Live.MistakeCounts[teamID]
}

func boolPtr(b bool) *bool            { return &b }
func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }
