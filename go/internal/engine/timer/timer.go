// Package timer implements the per-game synchronized countdown. Transitions
// are pure functions over the Timer document; the transaction that applies
// them provides the server timestamp every client renders from.
package timer

import (
	"errors"
	"fmt"
	"time"

	"github.com/trivium-live/trivium/go/internal/models"
)

var (
	// ErrTransition marks an illegal status transition; callers surface
	// it as a precondition failure, not a retry.
	ErrTransition = errors.New("timer: illegal transition")
	// ErrNotManager is returned when a client other than the declared
	// manager attempts to end or reset the countdown.
	ErrNotManager = errors.New("timer: not the managing client")
)

// Reset loads a new countdown and clears authorization. Allowed from any
// status: resetting is how the organizer recovers a stuck timer.
func Reset(t *models.Timer, durationSec int, now time.Time) {
	t.Status = models.TimerStatusReset
	t.DurationSec = durationSec
	t.RemainingSec = durationSec
	t.Authorized = false
	t.ManagedBy = ""
	t.Timestamp = now
}

// Start begins (or resumes) the countdown and records the managing client.
func Start(t *models.Timer, managerID string, now time.Time) error {
	switch t.Status {
	case models.TimerStatusReset, models.TimerStatusStop:
	default:
		return fmt.Errorf("%w: start from %s", ErrTransition, t.Status)
	}
	t.Status = models.TimerStatusStart
	t.ManagedBy = managerID
	t.Timestamp = now
	return nil
}

// Stop freezes the remaining time.
func Stop(t *models.Timer, now time.Time) error {
	if t.Status != models.TimerStatusStart {
		return fmt.Errorf("%w: stop from %s", ErrTransition, t.Status)
	}
	t.RemainingSec = remainingAt(t, now)
	t.Status = models.TimerStatusStop
	t.Timestamp = now
	return nil
}

// End terminates this countdown instance. Only the declared manager may end
// it, and ending twice fails the precondition so the scoring side effect runs
// exactly once.
func End(t *models.Timer, managerID string, now time.Time) error {
	if t.Status == models.TimerStatusEnd {
		return fmt.Errorf("%w: already ended", ErrTransition)
	}
	if t.ManagedBy != "" && managerID != t.ManagedBy {
		return ErrNotManager
	}
	t.Status = models.TimerStatusEnd
	t.RemainingSec = 0
	t.Authorized = false
	t.Timestamp = now
	return nil
}

// Authorize gates player-visible actions independently of the countdown
// status.
func Authorize(t *models.Timer, ok bool) {
	t.Authorized = ok
}

// Remaining computes the seconds left at now. Stopped timers report their
// frozen value; ended timers report zero.
func Remaining(t *models.Timer, now time.Time) int {
	switch t.Status {
	case models.TimerStatusStart:
		return remainingAt(t, now)
	case models.TimerStatusEnd:
		return 0
	default:
		return t.RemainingSec
	}
}

// Expired reports whether a running countdown has passed its deadline.
func Expired(t *models.Timer, now time.Time) bool {
	at, ok := t.Deadline()
	return ok && !at.After(now)
}

func remainingAt(t *models.Timer, now time.Time) int {
	elapsed := int(now.Sub(t.Timestamp) / time.Second)
	if t.Forward {
		return t.RemainingSec + elapsed
	}
	rem := t.RemainingSec - elapsed
	if rem < 0 {
		return 0
	}
	return rem
}
