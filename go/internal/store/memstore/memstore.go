// Package memstore is the in-memory implementation of the store port. It
// keeps every document versioned and applies the same optimistic-concurrency
// contract as the postgres store: transactions read a consistent snapshot,
// and commit fails and retries when a read document changed underneath.
// It backs the engine tests and local development.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

const maxRetries = 5

type docKey struct {
	gameID uuid.UUID
	kind   string
	id     uuid.UUID
}

type subscriber struct {
	gameID uuid.UUID
	ch     chan events.Envelope
	done   chan struct{}
	once   sync.Once
	closed bool // guarded by Store.sendMu
}

// Store is an in-memory document store.
type Store struct {
	mu       sync.RWMutex
	sendMu   sync.Mutex // serializes event delivery in commit order
	docs     map[docKey][]byte
	versions map[docKey]uint64
	subs     map[*subscriber]bool
	clock    clockwork.Clock
}

// New returns an empty store stamping time from clock.
func New(clock clockwork.Clock) *Store {
	return &Store{
		docs:     make(map[docKey][]byte),
		versions: make(map[docKey]uint64),
		subs:     make(map[*subscriber]bool),
		clock:    clock,
	}
}

var _ store.Store = (*Store)(nil)

func keyGame(gameID uuid.UUID) docKey    { return docKey{gameID: gameID, kind: "game"} }
func keyChooser(gameID uuid.UUID) docKey { return docKey{gameID: gameID, kind: "chooser"} }
func keyTimer(gameID uuid.UUID) docKey   { return docKey{gameID: gameID, kind: "timer"} }
func keyScore(gameID uuid.UUID) docKey   { return docKey{gameID: gameID, kind: "game_score"} }
func keyTeam(gameID, id uuid.UUID) docKey {
	return docKey{gameID: gameID, kind: "team", id: id}
}
func keyRound(gameID, id uuid.UUID) docKey {
	return docKey{gameID: gameID, kind: "round", id: id}
}
func keyBase(gameID, id uuid.UUID) docKey {
	return docKey{gameID: gameID, kind: "base_question", id: id}
}
func keyLive(gameID, roundID, questionID uuid.UUID) docKey {
	// A GameQuestion exists per (round, question) pair; fold both ids into
	// one deterministic key.
	return docKey{gameID: gameID, kind: "game_question", id: uuid.NewSHA1(roundID, questionID[:])}
}
func keyRoundScore(gameID, roundID uuid.UUID) docKey {
	return docKey{gameID: gameID, kind: "round_score", id: roundID}
}

// Seed loads a game fixture: the game record, its teams, rounds and authored
// questions, plus zero-value chooser, timer and score documents.
func (s *Store) Seed(game *models.Game, teams []models.Team, rounds []*models.Round, questions []*models.BaseQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	put := func(k docKey, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		s.docs[k] = raw
		s.versions[k] = 1
		return nil
	}

	if err := put(keyGame(game.ID), game); err != nil {
		return err
	}
	for i := range teams {
		if err := put(keyTeam(game.ID, teams[i].ID), &teams[i]); err != nil {
			return err
		}
	}
	for _, r := range rounds {
		if err := put(keyRound(game.ID, r.ID), r); err != nil {
			return err
		}
	}
	for _, q := range questions {
		if err := put(keyBase(game.ID, q.ID), q); err != nil {
			return err
		}
	}
	if err := put(keyChooser(game.ID), &models.Chooser{GameID: game.ID}); err != nil {
		return err
	}
	timer := &models.Timer{GameID: game.ID.String(), Status: models.TimerStatusReset, Timestamp: s.clock.Now().UTC()}
	if err := put(keyTimer(game.ID), timer); err != nil {
		return err
	}
	return put(keyScore(game.ID), models.NewGameScore(game.ID, game.TeamIDs))
}

// RunTx implements store.Store.
func (s *Store) RunTx(ctx context.Context, gameID uuid.UUID, fn func(tx store.Tx) error) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{
			store:  s,
			gameID: gameID,
			now:    s.clock.Now().UTC(),
			reads:  make(map[docKey]uint64),
			writes: make(map[docKey][]byte),
		}
		if err := fn(tx); err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
		log.Debug().Str("game_id", gameID.String()).Int("attempt", attempt+1).Msg("memstore commit conflict, retrying")
	}
	return store.ErrConflict
}

func (s *Store) commit(tx *memTx) bool {
	s.mu.Lock()

	for k, v := range tx.reads {
		if s.versions[k] != v {
			s.mu.Unlock()
			return false
		}
	}
	for k, raw := range tx.writes {
		s.docs[k] = raw
		s.versions[k]++
	}

	var targets []*subscriber
	for sub := range s.subs {
		if sub.gameID == tx.gameID {
			targets = append(targets, sub)
		}
	}
	if len(tx.events) == 0 || len(targets) == 0 {
		s.mu.Unlock()
		return true
	}

	// Take the delivery lock before releasing the store lock so racing
	// commits hand their events to subscribers in commit order.
	s.sendMu.Lock()
	s.mu.Unlock()
	defer s.sendMu.Unlock()

	for _, env := range tx.events {
		for _, sub := range targets {
			if sub.closed {
				continue
			}
			// Blocking send: a slow subscriber backpressures commits
			// instead of silently losing a committed transition. A
			// cancelled subscription unblocks via its done channel.
			select {
			case sub.ch <- env:
			case <-sub.done:
			}
		}
	}
	return true
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, gameID uuid.UUID) (<-chan events.Envelope, func(), error) {
	sub := &subscriber{
		gameID: gameID,
		ch:     make(chan events.Envelope, 256),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.subs[sub] = true
	s.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			close(sub.done) // unblocks any in-flight delivery
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			// The closed flag and the close share the delivery lock, so a
			// committer can never send on a closed channel.
			s.sendMu.Lock()
			sub.closed = true
			close(sub.ch)
			s.sendMu.Unlock()
		})
	}
	return sub.ch, cancel, nil
}

// Now implements store.Store.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	return s.clock.Now().UTC(), nil
}

// NextDeadline implements store.Store.
func (s *Store) NextDeadline(ctx context.Context) (*store.Deadline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *store.Deadline
	for k, raw := range s.docs {
		if k.kind != "timer" {
			continue
		}
		var t models.Timer
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		at, ok := t.Deadline()
		if !ok {
			continue
		}
		if next == nil || at.Before(next.At) {
			next = &store.Deadline{GameID: k.gameID, At: at}
		}
	}
	return next, nil
}

// DueGames implements store.Store.
func (s *Store) DueGames(ctx context.Context, limit int) ([]uuid.UUID, error) {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []uuid.UUID
	for k, raw := range s.docs {
		if k.kind != "timer" || len(due) >= limit {
			continue
		}
		var t models.Timer
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		if at, ok := t.Deadline(); ok && !at.After(now) {
			due = append(due, k.gameID)
		}
	}
	return due, nil
}

// memTx is a single optimistic transaction.
type memTx struct {
	store  *Store
	gameID uuid.UUID
	now    time.Time
	reads  map[docKey]uint64
	writes map[docKey][]byte
	events []events.Envelope
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) Now() time.Time { return t.now }

func (t *memTx) get(k docKey, out any) error {
	if raw, ok := t.writes[k]; ok {
		return json.Unmarshal(raw, out)
	}
	t.store.mu.RLock()
	raw, ok := t.store.docs[k]
	version := t.store.versions[k]
	t.store.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, k.kind, k.id)
	}
	if _, seen := t.reads[k]; !seen {
		t.reads[k] = version
	}
	return json.Unmarshal(raw, out)
}

func (t *memTx) put(k docKey, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.writes[k] = raw
	return nil
}

func (t *memTx) Game() (*models.Game, error) {
	var g models.Game
	if err := t.get(keyGame(t.gameID), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (t *memTx) PutGame(g *models.Game) error {
	g.UpdatedAt = t.now
	return t.put(keyGame(t.gameID), g)
}

func (t *memTx) Teams() ([]models.Team, error) {
	g, err := t.Game()
	if err != nil {
		return nil, err
	}
	teams := make([]models.Team, 0, len(g.TeamIDs))
	for _, id := range g.TeamIDs {
		var team models.Team
		if err := t.get(keyTeam(t.gameID, id), &team); err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, nil
}

func (t *memTx) Round(id uuid.UUID) (*models.Round, error) {
	var r models.Round
	if err := t.get(keyRound(t.gameID, id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *memTx) PutRound(r *models.Round) error {
	return t.put(keyRound(t.gameID, r.ID), r)
}

func (t *memTx) BaseQuestion(id uuid.UUID) (*models.BaseQuestion, error) {
	var q models.BaseQuestion
	if err := t.get(keyBase(t.gameID, id), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (t *memTx) GameQuestion(roundID, questionID uuid.UUID) (*models.GameQuestion, error) {
	var q models.GameQuestion
	err := t.get(keyLive(t.gameID, roundID, questionID), &q)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (t *memTx) PutGameQuestion(q *models.GameQuestion) error {
	return t.put(keyLive(t.gameID, q.RoundID, q.QuestionID), q)
}

func (t *memTx) Chooser() (*models.Chooser, error) {
	var c models.Chooser
	if err := t.get(keyChooser(t.gameID), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *memTx) PutChooser(c *models.Chooser) error {
	return t.put(keyChooser(t.gameID), c)
}

func (t *memTx) Timer() (*models.Timer, error) {
	var tm models.Timer
	if err := t.get(keyTimer(t.gameID), &tm); err != nil {
		return nil, err
	}
	return &tm, nil
}

func (t *memTx) PutTimer(tm *models.Timer) error {
	return t.put(keyTimer(t.gameID), tm)
}

func (t *memTx) RoundScore(roundID uuid.UUID) (*models.RoundScore, error) {
	var s models.RoundScore
	if err := t.get(keyRoundScore(t.gameID, roundID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *memTx) PutRoundScore(s *models.RoundScore) error {
	return t.put(keyRoundScore(t.gameID, s.RoundID), s)
}

func (t *memTx) GameScore() (*models.GameScore, error) {
	var s models.GameScore
	if err := t.get(keyScore(t.gameID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *memTx) PutGameScore(s *models.GameScore) error {
	return t.put(keyScore(t.gameID), s)
}

func (t *memTx) Emit(typ events.Type, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	t.events = append(t.events, events.Envelope{
		ID:        uuid.New().String(),
		GameID:    t.gameID.String(),
		Type:      typ,
		Timestamp: t.now,
		Data:      raw,
	})
	return nil
}
