// Package store defines the transactional document-store port the engine is
// written against. Every state transition runs inside one RunTx call: it
// reads the documents it depends on, checks preconditions, and writes the new
// values all-or-nothing. Conflicting concurrent commits are retried by the
// implementation a bounded number of times; precondition failures abort
// without retry.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/models"
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrPrecondition marks a rejected transition. It is surfaced to the
	// caller as a no-op failure and is never retried.
	ErrPrecondition = errors.New("store: precondition failed")
	// ErrConflict is returned by RunTx after conflict retries exhaust.
	ErrConflict = errors.New("store: transaction conflict")
)

// Deadline is the earliest running-countdown expiry across live games.
type Deadline struct {
	GameID uuid.UUID
	At     time.Time
}

// Tx is the read-modify-write surface available inside one transaction.
// Reads observe a consistent snapshot; writes become visible atomically on
// commit. Emit queues a committed event published with the same atomicity.
type Tx interface {
	// Now is the authoritative commit clock. All persisted timestamps
	// come from here so clients can render a shared countdown from their
	// measured offset.
	Now() time.Time

	Game() (*models.Game, error)
	PutGame(g *models.Game) error

	Teams() ([]models.Team, error)

	Round(id uuid.UUID) (*models.Round, error)
	PutRound(r *models.Round) error

	BaseQuestion(id uuid.UUID) (*models.BaseQuestion, error)

	GameQuestion(roundID, questionID uuid.UUID) (*models.GameQuestion, error)
	PutGameQuestion(q *models.GameQuestion) error

	Chooser() (*models.Chooser, error)
	PutChooser(c *models.Chooser) error

	Timer() (*models.Timer, error)
	PutTimer(t *models.Timer) error

	RoundScore(roundID uuid.UUID) (*models.RoundScore, error)
	PutRoundScore(s *models.RoundScore) error

	GameScore() (*models.GameScore, error)
	PutGameScore(s *models.GameScore) error

	Emit(typ events.Type, payload any) error
}

// Store is the port implemented by memstore and pgstore.
type Store interface {
	// RunTx executes fn atomically against the game's documents,
	// retrying on write conflicts. An fn error aborts the transaction
	// and is returned unchanged.
	RunTx(ctx context.Context, gameID uuid.UUID, fn func(tx Tx) error) error

	// Subscribe delivers every committed event of the game, in commit
	// order, starting with events committed after the call. The returned
	// cancel func releases the subscription.
	Subscribe(ctx context.Context, gameID uuid.UUID) (<-chan events.Envelope, func(), error)

	// Now reports the authoritative server time, used for client clock
	// offset estimation.
	Now(ctx context.Context) (time.Time, error)

	// NextDeadline returns the earliest running-countdown expiry across
	// all live games, or nil when no countdown is running.
	NextDeadline(ctx context.Context) (*Deadline, error)

	// DueGames returns up to limit games whose running countdown has
	// expired.
	DueGames(ctx context.Context, limit int) ([]uuid.UUID, error)
}
