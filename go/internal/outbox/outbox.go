// Package outbox relays committed engine events from the database to the
// message bus. Events are written in the same transaction as the state change
// that produced them, then published and marked sent by the polling worker,
// giving at-least-once delivery with bus-side deduplication on the event ID.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one row of the game_outbox table.
type Event struct {
	ID        uuid.UUID
	GameID    uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// EventPublisher pushes one event to the bus. Implementations must be safe
// for duplicate delivery of the same event ID.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
