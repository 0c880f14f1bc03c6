package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// Repository reads the relay side of the game_outbox table. Rows are written
// by the store inside the transaction that produced the event.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FetchUnsent locks and returns up to limit unsent events in commit order.
// Must run inside the worker's transaction so competing relay instances skip
// each other's batches.
func (r *Repository) FetchUnsent(ctx context.Context, tx *sql.Tx, limit int32) ([]Event, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, game_id, event_type, payload, created_at
		FROM game_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var payload pqtype.NullRawMessage
		if err := rows.Scan(&ev.ID, &ev.GameID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		if payload.Valid {
			ev.Payload = payload.RawMessage
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkSent stamps the given events as published.
func (r *Repository) MarkSent(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE game_outbox SET sent_at = now() WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("mark outbox events sent: %w", err)
	}
	return nil
}
