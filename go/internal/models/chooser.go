package models

import "github.com/google/uuid"

// Chooser is the per-game turn-rotation record. Order and Idx are both nil
// until the first round starts; afterwards Idx is always a valid index into
// Order and Order is stable for the rest of the game.
type Chooser struct {
	GameID uuid.UUID   `json:"game_id"`
	Order  []uuid.UUID `json:"order,omitempty"`
	Idx    *int        `json:"idx,omitempty"`
}

// Initialized reports whether the rotation order has been fixed.
func (c *Chooser) Initialized() bool {
	return len(c.Order) > 0
}
