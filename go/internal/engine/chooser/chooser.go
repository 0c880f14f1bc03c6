// Package chooser implements the turn-rotation primitive. It only stores and
// resets the cursor; round strategies decide how the next chooser is
// computed.
package chooser

import (
	"errors"
	"math/rand"

	"github.com/google/uuid"
	"github.com/trivium-live/trivium/go/internal/models"
)

// ErrEmptyOrder is returned when the rotation has not been initialized.
var ErrEmptyOrder = errors.New("chooser: order not initialized")

// InitOrder fixes the rotation order from a shuffle of teamIDs. It runs once
// per game: calling it again is a no-op, so the order stays stable across
// rounds. The seed comes from the transaction clock so fake-clock tests are
// deterministic.
func InitOrder(c *models.Chooser, teamIDs []uuid.UUID, seed int64) {
	if c.Initialized() {
		return
	}
	order := make([]uuid.UUID, len(teamIDs))
	copy(order, teamIDs)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	idx := 0
	c.Order = order
	c.Idx = &idx
}

// ResetIndex moves the cursor back to the first team. Called at the start of
// every question that needs a fresh chooser.
func ResetIndex(c *models.Chooser) error {
	if !c.Initialized() {
		return ErrEmptyOrder
	}
	idx := 0
	c.Idx = &idx
	return nil
}

// Current returns the team whose turn it is.
func Current(c *models.Chooser) (uuid.UUID, error) {
	if !c.Initialized() || c.Idx == nil || *c.Idx < 0 || *c.Idx >= len(c.Order) {
		return uuid.Nil, ErrEmptyOrder
	}
	return c.Order[*c.Idx], nil
}

// SetIndex points the cursor at an explicit position.
func SetIndex(c *models.Chooser, idx int) error {
	if !c.Initialized() || idx < 0 || idx >= len(c.Order) {
		return ErrEmptyOrder
	}
	c.Idx = &idx
	return nil
}

// Advance moves the cursor to the next team in rotation order, skipping any
// team for which skip returns true. It reports false when every team is
// skipped.
func Advance(c *models.Chooser, skip func(uuid.UUID) bool) bool {
	if !c.Initialized() || c.Idx == nil {
		return false
	}
	n := len(c.Order)
	for step := 1; step <= n; step++ {
		next := (*c.Idx + step) % n
		if skip != nil && skip(c.Order[next]) {
			continue
		}
		c.Idx = &next
		return true
	}
	return false
}
