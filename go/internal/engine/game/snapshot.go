package game

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/trivium-live/trivium/go/internal/engine/timer"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// Snapshot is the full live view of one game, sent to clients when they join
// or reconnect so they can render without replaying history.
type Snapshot struct {
	Game       *models.Game         `json:"game"`
	Teams      []models.Team        `json:"teams"`
	Round      *models.Round        `json:"round,omitempty"`
	Question   *models.BaseQuestion `json:"question,omitempty"`
	Live       *models.GameQuestion `json:"live,omitempty"`
	Chooser    *models.Chooser      `json:"chooser"`
	Timer      *models.Timer        `json:"timer"`
	Remaining  int                  `json:"remaining_sec"`
	RoundScore *models.RoundScore   `json:"round_score,omitempty"`
	GameScore  *models.GameScore    `json:"game_score"`
	ServerTime time.Time            `json:"server_time"`
}

// Snapshot reads a consistent view of the game.
func (e *Engine) Snapshot(ctx context.Context, gameID uuid.UUID) (*Snapshot, error) {
	var snap Snapshot
	err := e.store.RunTx(ctx, gameID, func(tx store.Tx) error {
		g, err := tx.Game()
		if err != nil {
			return err
		}
		teams, err := tx.Teams()
		if err != nil {
			return err
		}
		ch, err := tx.Chooser()
		if err != nil {
			return err
		}
		tm, err := tx.Timer()
		if err != nil {
			return err
		}
		gs, err := tx.GameScore()
		if err != nil {
			return err
		}
		now := tx.Now()
		snap = Snapshot{
			Game:       g,
			Teams:      teams,
			Chooser:    ch,
			Timer:      tm,
			Remaining:  timer.Remaining(tm, now),
			GameScore:  gs,
			ServerTime: now,
		}
		if g.CurrentRoundID != nil {
			round, err := tx.Round(*g.CurrentRoundID)
			if err != nil {
				return err
			}
			snap.Round = round
			rs, err := tx.RoundScore(round.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			snap.RoundScore = rs
			if g.CurrentQuestionID != nil {
				base, err := tx.BaseQuestion(*g.CurrentQuestionID)
				if err != nil {
					return err
				}
				live, err := tx.GameQuestion(round.ID, base.ID)
				if err != nil {
					return err
				}
				snap.Question = base
				snap.Live = live
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// RedactForPlayers strips answer material a player client must not see.
func (s *Snapshot) RedactForPlayers() {
	if s.Question == nil {
		return
	}
	q := *s.Question
	q.CorrectChoice = 0
	q.OddIndex = 0
	q.MatchPairs = nil
	s.Question = &q
}
