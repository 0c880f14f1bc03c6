// Package pgstore is the postgres implementation of the store port. Game
// state lives as jsonb documents in one table; every RunTx is a serializable
// transaction retried on serialization failure, so the engine sees the same
// optimistic-concurrency contract as the in-memory store. Committed events go
// to the outbox table and a NOTIFY channel in the same transaction.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

const maxRetries = 5

// notifyChannel carries committed event envelopes to in-process subscribers.
const notifyChannel = "game_events"

// Store is a postgres-backed document store.
type Store struct {
	pool *pgxpool.Pool
	dsn  string
}

var _ store.Store = (*Store)(nil)

// New connects a pool over the given DSN. The DSN is kept for the listener
// connections Subscribe opens.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, dsn: dsn}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate applies the document and outbox schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS game_documents (
	game_id uuid        NOT NULL,
	kind    text        NOT NULL,
	doc_id  uuid        NOT NULL,
	data    jsonb       NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (game_id, kind, doc_id)
);

CREATE INDEX IF NOT EXISTS game_documents_timer_deadline_idx
	ON game_documents (((data->>'timestamp')::timestamptz))
	WHERE kind = 'timer' AND data->>'status' = 'START';

CREATE TABLE IF NOT EXISTS game_outbox (
	id         uuid PRIMARY KEY,
	game_id    uuid NOT NULL,
	event_type text NOT NULL,
	payload    jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	sent_at    timestamptz
);

CREATE INDEX IF NOT EXISTS game_outbox_unsent_idx
	ON game_outbox (created_at)
	WHERE sent_at IS NULL;
`

// Seed loads a game fixture: the game record, its teams, rounds and authored
// questions, plus zero-value chooser, timer and score documents.
func (s *Store) Seed(ctx context.Context, game *models.Game, teams []models.Team, rounds []*models.Round, questions []*models.BaseQuestion) error {
	return s.RunTx(ctx, game.ID, func(tx store.Tx) error {
		ptx := tx.(*pgTx)
		if err := ptx.put("game", uuid.Nil, game); err != nil {
			return err
		}
		for i := range teams {
			if err := ptx.put("team", teams[i].ID, &teams[i]); err != nil {
				return err
			}
		}
		for _, r := range rounds {
			if err := ptx.put("round", r.ID, r); err != nil {
				return err
			}
		}
		for _, q := range questions {
			if err := ptx.put("base_question", q.ID, q); err != nil {
				return err
			}
		}
		if err := ptx.put("chooser", uuid.Nil, &models.Chooser{GameID: game.ID}); err != nil {
			return err
		}
		tm := &models.Timer{GameID: game.ID.String(), Status: models.TimerStatusReset, Timestamp: ptx.now}
		if err := ptx.put("timer", uuid.Nil, tm); err != nil {
			return err
		}
		return ptx.put("game_score", uuid.Nil, models.NewGameScore(game.ID, game.TeamIDs))
	})
}

// RunTx implements store.Store.
func (s *Store) RunTx(ctx context.Context, gameID uuid.UUID, fn func(tx store.Tx) error) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.attempt(ctx, gameID, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		log.Debug().Str("game_id", gameID.String()).Int("attempt", attempt+1).Msg("serialization failure, retrying")
	}
	return store.ErrConflict
}

func (s *Store) attempt(ctx context.Context, gameID uuid.UUID, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var now time.Time
	if err := tx.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return fmt.Errorf("read transaction clock: %w", err)
	}

	ptx := &pgTx{ctx: ctx, tx: tx, gameID: gameID, now: now.UTC()}
	if err := fn(ptx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure or deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// Subscribe implements store.Store via LISTEN/NOTIFY on a dedicated
// connection. Envelopes arrive in commit order because pg_notify queues them
// transactionally.
func (s *Store) Subscribe(ctx context.Context, gameID uuid.UUID) (<-chan events.Envelope, func(), error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(ctx)
		return nil, nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	ch := make(chan events.Envelope, 256)
	subCtx, cancelCtx := context.WithCancel(ctx)

	go func() {
		defer close(ch)
		defer func() { _ = conn.Close(context.Background()) }()
		for {
			n, err := conn.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					log.Error().Err(err).Str("game_id", gameID.String()).Msg("notification wait failed")
				}
				return
			}
			var env events.Envelope
			if err := json.Unmarshal([]byte(n.Payload), &env); err != nil {
				log.Warn().Err(err).Msg("malformed event notification")
				continue
			}
			if env.GameID != gameID.String() {
				continue
			}
			// Block rather than drop: a slow consumer delays its own feed
			// but never misses a committed transition.
			select {
			case ch <- env:
			case <-subCtx.Done():
				return
			}
		}
	}()
	return ch, cancelCtx, nil
}

// Now implements store.Store.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("read server clock: %w", err)
	}
	return now.UTC(), nil
}

// NextDeadline implements store.Store.
func (s *Store) NextDeadline(ctx context.Context) (*store.Deadline, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT game_id,
		       (data->>'timestamp')::timestamptz
		           + make_interval(secs => (data->>'remaining_sec')::int) AS deadline
		FROM game_documents
		WHERE kind = 'timer'
		  AND data->>'status' = 'START'
		  AND NOT COALESCE((data->>'forward')::bool, false)
		ORDER BY deadline
		LIMIT 1`)

	var d store.Deadline
	if err := row.Scan(&d.GameID, &d.At); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch next deadline: %w", err)
	}
	return &d, nil
}

// DueGames implements store.Store.
func (s *Store) DueGames(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id
		FROM game_documents
		WHERE kind = 'timer'
		  AND data->>'status' = 'START'
		  AND NOT COALESCE((data->>'forward')::bool, false)
		  AND (data->>'timestamp')::timestamptz
		      + make_interval(secs => (data->>'remaining_sec')::int) <= now()
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch due games: %w", err)
	}
	defer rows.Close()

	var due []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		due = append(due, id)
	}
	return due, rows.Err()
}

// pgTx adapts one pgx transaction to the store.Tx surface.
type pgTx struct {
	ctx    context.Context
	tx     pgx.Tx
	gameID uuid.UUID
	now    time.Time
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) Now() time.Time { return t.now }

// liveID folds a (round, question) pair into one deterministic document id.
func liveID(roundID, questionID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(roundID, questionID[:])
}

func (t *pgTx) get(kind string, docID uuid.UUID, out any) error {
	var data []byte
	err := t.tx.QueryRow(t.ctx, `
		SELECT data FROM game_documents
		WHERE game_id = $1 AND kind = $2 AND doc_id = $3`,
		t.gameID, kind, docID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, docID)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", kind, err)
	}
	return json.Unmarshal(data, out)
}

func (t *pgTx) put(kind string, docID uuid.UUID, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO game_documents (game_id, kind, doc_id, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id, kind, doc_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		t.gameID, kind, docID, data, t.now,
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

func (t *pgTx) Game() (*models.Game, error) {
	var g models.Game
	if err := t.get("game", uuid.Nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (t *pgTx) PutGame(g *models.Game) error {
	g.UpdatedAt = t.now
	return t.put("game", uuid.Nil, g)
}

func (t *pgTx) Teams() ([]models.Team, error) {
	g, err := t.Game()
	if err != nil {
		return nil, err
	}
	teams := make([]models.Team, 0, len(g.TeamIDs))
	for _, id := range g.TeamIDs {
		var team models.Team
		if err := t.get("team", id, &team); err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, nil
}

func (t *pgTx) Round(id uuid.UUID) (*models.Round, error) {
	var r models.Round
	if err := t.get("round", id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) PutRound(r *models.Round) error {
	return t.put("round", r.ID, r)
}

func (t *pgTx) BaseQuestion(id uuid.UUID) (*models.BaseQuestion, error) {
	var q models.BaseQuestion
	if err := t.get("base_question", id, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (t *pgTx) GameQuestion(roundID, questionID uuid.UUID) (*models.GameQuestion, error) {
	var q models.GameQuestion
	if err := t.get("game_question", liveID(roundID, questionID), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (t *pgTx) PutGameQuestion(q *models.GameQuestion) error {
	return t.put("game_question", liveID(q.RoundID, q.QuestionID), q)
}

func (t *pgTx) Chooser() (*models.Chooser, error) {
	var c models.Chooser
	if err := t.get("chooser", uuid.Nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *pgTx) PutChooser(c *models.Chooser) error {
	return t.put("chooser", uuid.Nil, c)
}

func (t *pgTx) Timer() (*models.Timer, error) {
	var tm models.Timer
	if err := t.get("timer", uuid.Nil, &tm); err != nil {
		return nil, err
	}
	return &tm, nil
}

func (t *pgTx) PutTimer(tm *models.Timer) error {
	return t.put("timer", uuid.Nil, tm)
}

func (t *pgTx) RoundScore(roundID uuid.UUID) (*models.RoundScore, error) {
	var s models.RoundScore
	if err := t.get("round_score", roundID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *pgTx) PutRoundScore(s *models.RoundScore) error {
	return t.put("round_score", s.RoundID, s)
}

func (t *pgTx) GameScore() (*models.GameScore, error) {
	var s models.GameScore
	if err := t.get("game_score", uuid.Nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *pgTx) PutGameScore(s *models.GameScore) error {
	return t.put("game_score", uuid.Nil, s)
}

// Emit writes the event to the outbox and queues a NOTIFY, both riding this
// transaction: subscribers and the bus never see an uncommitted transition.
func (t *pgTx) Emit(typ events.Type, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	env := events.Envelope{
		ID:        uuid.New().String(),
		GameID:    t.gameID.String(),
		Type:      typ,
		Timestamp: t.now,
		Data:      raw,
	}

	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO game_outbox (id, game_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		env.ID, t.gameID, string(typ), raw, t.now,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	envRaw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := t.tx.Exec(t.ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(envRaw)); err != nil {
		return fmt.Errorf("notify event: %w", err)
	}
	return nil
}
