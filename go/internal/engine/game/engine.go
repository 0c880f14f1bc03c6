// Package game implements the top-level state machine. Every public method is
// one idempotent command: it opens a store transaction, checks the status
// guard, applies the transition through the round orchestrator and commits.
// Duplicate or stale commands fail their precondition and change nothing.
package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trivium-live/trivium/go/internal/engine/rounds"
	"github.com/trivium-live/trivium/go/internal/engine/timer"
	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

// Engine executes game commands against the document store.
type Engine struct {
	store  store.Store
	rounds *rounds.Orchestrator
	logger zerolog.Logger
}

// NewEngine builds the engine over the given store.
func NewEngine(st store.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  st,
		rounds: rounds.NewOrchestrator(),
		logger: logger.With().Str("component", "engine").Logger(),
	}
}

// organizer-only command kinds; everything else is submitted by players.
var organizerKinds = map[rounds.ActionKind]bool{
	rounds.ActionAnswer:         true,
	rounds.ActionValidateHead:   true,
	rounds.ActionInvalidateHead: true,
	rounds.ActionReveal:         true,
}

// StartGame moves the game out of editing into the lobby.
func (e *Engine) StartGame(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.run(ctx, gameID, "start_game", func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		if g.Status != models.GameStatusEdit {
			return statusErr(g.Status, "start")
		}
		if len(g.TeamIDs) == 0 {
			return fmt.Errorf("%w: game has no teams", store.ErrPrecondition)
		}
		return e.setStatus(tx, g, models.GameStatusStart)
	})
}

// GoHome brings everyone to the between-rounds screen.
func (e *Engine) GoHome(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.run(ctx, gameID, "go_home", func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		switch g.Status {
		case models.GameStatusStart, models.GameStatusRoundEnd:
		default:
			return statusErr(g.Status, "go home")
		}
		g.CurrentRoundID = nil
		g.CurrentQuestionID = nil
		return e.setStatus(tx, g, models.GameStatusHome)
	})
}

// SelectRound starts the given round.
func (e *Engine) SelectRound(ctx context.Context, gameID, roundID uuid.UUID, actorID string) error {
	return e.run(ctx, gameID, "select_round", func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		if g.Status != models.GameStatusHome {
			return statusErr(g.Status, "select round")
		}
		if !containsUUID(g.RoundIDs, roundID) {
			return fmt.Errorf("%w: round %s does not belong to game", store.ErrPrecondition, roundID)
		}
		return e.rounds.SelectRound(tx, g, roundID)
	})
}

// NextQuestion advances to the round's next question.
func (e *Engine) NextQuestion(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.run(ctx, gameID, "next_question", func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		switch g.Status {
		case models.GameStatusRoundStart, models.GameStatusQuestionEnd, models.GameStatusSpecial:
		default:
			return statusErr(g.Status, "next question")
		}
		return e.rounds.NextQuestion(tx, g)
	})
}

// Do routes one gameplay action to the active question's strategy. Organizer
// action kinds are rejected for other actors; player actions are resolved to
// the actor's team.
func (e *Engine) Do(ctx context.Context, gameID uuid.UUID, actorID string, act rounds.Action) error {
	return e.run(ctx, gameID, "action:"+string(act.Kind), func(tx store.Tx, g *models.Game) error {
		switch g.Status {
		case models.GameStatusQuestionActive, models.GameStatusSpecial:
		default:
			return statusErr(g.Status, "play")
		}
		if organizerKinds[act.Kind] {
			if err := requireOrganizer(g, actorID); err != nil {
				return err
			}
		} else if act.PlayerID == "" {
			act.PlayerID = actorID
		}
		return e.rounds.HandleAction(tx, g, act)
	})
}

// Expire concludes the active question after its countdown ran out. Called by
// the deadline scheduler; safe under duplicate delivery.
func (e *Engine) Expire(ctx context.Context, gameID uuid.UUID) error {
	return e.run(ctx, gameID, "expire", func(tx store.Tx, g *models.Game) error {
		switch g.Status {
		case models.GameStatusQuestionActive, models.GameStatusSpecial:
		default:
			return statusErr(g.Status, "expire")
		}
		return e.rounds.Expire(tx, g)
	})
}

// ResetQuestion restarts the current question from scratch.
func (e *Engine) ResetQuestion(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.run(ctx, gameID, "reset_question", func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		switch g.Status {
		case models.GameStatusQuestionActive, models.GameStatusQuestionEnd, models.GameStatusSpecial:
		default:
			return statusErr(g.Status, "reset question")
		}
		return e.rounds.ResetQuestion(tx, g)
	})
}

// ClearBuzzer empties the race queue of the current question.
func (e *Engine) ClearBuzzer(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.run(ctx, gameID, "clear_buzzer", func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		switch g.Status {
		case models.GameStatusQuestionActive, models.GameStatusSpecial:
		default:
			return statusErr(g.Status, "clear buzzer")
		}
		return e.rounds.ClearBuzzer(tx, g)
	})
}

// EndRound closes the current round and publishes the standings.
func (e *Engine) EndRound(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.run(ctx, gameID, "end_round", func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		switch g.Status {
		case models.GameStatusQuestionEnd, models.GameStatusSpecial, models.GameStatusRoundStart:
		default:
			return statusErr(g.Status, "end round")
		}
		return e.rounds.EndRound(tx, g)
	})
}

// EndGame archives the game. No transition leaves END.
func (e *Engine) EndGame(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.run(ctx, gameID, "end_game", func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		switch g.Status {
		case models.GameStatusHome, models.GameStatusRoundEnd:
		default:
			return statusErr(g.Status, "end game")
		}
		if err := e.setStatus(tx, g, models.GameStatusEnd); err != nil {
			return err
		}
		return tx.Emit(events.TypeGameEnded, events.GameEndedPayload{
			GameID:  g.ID.String(),
			EndedAt: tx.Now(),
		})
	})
}

// StartTimer begins or resumes the countdown; the caller becomes its manager.
func (e *Engine) StartTimer(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.timerOp(ctx, gameID, actorID, "start_timer", func(tm *models.Timer, tx store.Tx) error {
		return timer.Start(tm, actorID, tx.Now())
	})
}

// StopTimer freezes the countdown.
func (e *Engine) StopTimer(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.timerOp(ctx, gameID, actorID, "stop_timer", func(tm *models.Timer, tx store.Tx) error {
		return timer.Stop(tm, tx.Now())
	})
}

// ResetTimer reloads the countdown with the given duration.
func (e *Engine) ResetTimer(ctx context.Context, gameID uuid.UUID, actorID string, durationSec int) error {
	if durationSec <= 0 {
		return fmt.Errorf("%w: duration must be positive", store.ErrPrecondition)
	}
	return e.timerOp(ctx, gameID, actorID, "reset_timer", func(tm *models.Timer, tx store.Tx) error {
		timer.Reset(tm, durationSec, tx.Now())
		return nil
	})
}

// EndTimer terminates the countdown instance. Only its manager may end it,
// and a second end fails, so any attached side effect fires exactly once.
func (e *Engine) EndTimer(ctx context.Context, gameID uuid.UUID, actorID string) error {
	return e.timerOp(ctx, gameID, actorID, "end_timer", func(tm *models.Timer, tx store.Tx) error {
		return timer.End(tm, actorID, tx.Now())
	})
}

// AuthorizePlayers opens or closes the player action gate.
func (e *Engine) AuthorizePlayers(ctx context.Context, gameID uuid.UUID, actorID string, ok bool) error {
	return e.timerOp(ctx, gameID, actorID, "authorize_players", func(tm *models.Timer, tx store.Tx) error {
		timer.Authorize(tm, ok)
		return nil
	})
}

func (e *Engine) timerOp(ctx context.Context, gameID uuid.UUID, actorID, op string, fn func(*models.Timer, store.Tx) error) error {
	return e.run(ctx, gameID, op, func(tx store.Tx, g *models.Game) error {
		if err := requireOrganizer(g, actorID); err != nil {
			return err
		}
		tm, err := tx.Timer()
		if err != nil {
			return err
		}
		if err := fn(tm, tx); err != nil {
			if errors.Is(err, timer.ErrTransition) || errors.Is(err, timer.ErrNotManager) {
				return fmt.Errorf("%w: %v", store.ErrPrecondition, err)
			}
			return err
		}
		if err := tx.PutTimer(tm); err != nil {
			return err
		}
		return tx.Emit(events.TypeTimerChanged, events.TimerChangedPayload{
			Status:       string(tm.Status),
			DurationSec:  tm.DurationSec,
			RemainingSec: timer.Remaining(tm, tx.Now()),
			Authorized:   tm.Authorized,
			ManagedBy:    tm.ManagedBy,
			Timestamp:    tm.Timestamp,
		})
	})
}

// run wraps one command in a store transaction with the shared load, archive
// guard and logging.
func (e *Engine) run(ctx context.Context, gameID uuid.UUID, op string, fn func(store.Tx, *models.Game) error) error {
	err := e.store.RunTx(ctx, gameID, func(tx store.Tx) error {
		g, err := tx.Game()
		if err != nil {
			return err
		}
		if g.Ended() && op != "expire" {
			return fmt.Errorf("%w: game ended", store.ErrPrecondition)
		}
		if err := fn(tx, g); err != nil {
			return err
		}
		g.UpdatedAt = tx.Now()
		return tx.PutGame(g)
	})
	switch {
	case err == nil:
		e.logger.Debug().Str("game_id", gameID.String()).Str("op", op).Msg("command applied")
	case errors.Is(err, store.ErrPrecondition):
		e.logger.Debug().Str("game_id", gameID.String()).Str("op", op).Err(err).Msg("command rejected")
	default:
		e.logger.Error().Str("game_id", gameID.String()).Str("op", op).Err(err).Msg("command failed")
	}
	return err
}

func (e *Engine) setStatus(tx store.Tx, g *models.Game, to models.GameStatus) error {
	from := g.Status
	if from == to {
		return nil
	}
	g.Status = to
	return tx.Emit(events.TypeGameStatusChanged, events.GameStatusChangedPayload{
		GameID: g.ID.String(),
		From:   string(from),
		To:     string(to),
	})
}

func requireOrganizer(g *models.Game, actorID string) error {
	if actorID != g.OrganizerID {
		return fmt.Errorf("%w: organizer only", store.ErrPrecondition)
	}
	return nil
}

func statusErr(s models.GameStatus, verb string) error {
	return fmt.Errorf("%w: cannot %s in status %s", store.ErrPrecondition, verb, s)
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
