// Package buzzer implements the ordered race queue for buzzer-style
// questions. The primitive is side-effect-free: it only exposes ordering, and
// the organizer UI reacts to head changes.
package buzzer

import (
	"time"

	"github.com/trivium-live/trivium/go/internal/models"
)

// New returns an empty race state.
func New() *models.BuzzerState {
	return &models.BuzzerState{Buzzed: []string{}}
}

// Buzz appends the player to the race queue. It reports false, changing
// nothing, when the player is already queued.
func Buzz(b *models.BuzzerState, playerID string) bool {
	for _, id := range b.Buzzed {
		if id == playerID {
			return false
		}
	}
	b.Buzzed = append(b.Buzzed, playerID)
	return true
}

// Cancel removes the player from the queue and records the cancellation
// tagged with the reveal index active at that moment. A cancelled player
// becomes eligible again once the reveal cursor passes that index, and
// re-buzzing puts them at the back of the queue. Reports false when the
// player was not queued.
func Cancel(b *models.BuzzerState, playerID string, clueIdx int, at time.Time) bool {
	for i, id := range b.Buzzed {
		if id != playerID {
			continue
		}
		b.Buzzed = append(b.Buzzed[:i], b.Buzzed[i+1:]...)
		b.Canceled = append(b.Canceled, models.BuzzCancellation{
			PlayerID: playerID,
			ClueIdx:  clueIdx,
			At:       at,
		})
		return true
	}
	return false
}

// Clear empties the queue. Cancellations persist for the life of the
// question.
func Clear(b *models.BuzzerState) {
	b.Buzzed = []string{}
}

// Head returns the earliest queued player.
func Head(b *models.BuzzerState) (string, bool) {
	if len(b.Buzzed) == 0 {
		return "", false
	}
	return b.Buzzed[0], true
}

// Eligible reports whether the player may buzz given the current reveal
// cursor. A player cancelled at clue k is locked out until revealed > k; the
// most recent cancellation wins.
func Eligible(b *models.BuzzerState, playerID string, revealed int) bool {
	lockedAt := -1
	for _, c := range b.Canceled {
		if c.PlayerID == playerID && c.ClueIdx > lockedAt {
			lockedAt = c.ClueIdx
		}
	}
	if lockedAt < 0 {
		return true
	}
	return revealed > lockedAt
}
