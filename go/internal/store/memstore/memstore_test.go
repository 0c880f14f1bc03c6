package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/trivium-live/trivium/go/internal/engine/timer"
	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store"
)

func seedStore(t *testing.T) (*Store, *clockwork.FakeClock, *models.Game) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC))
	s := New(clock)

	teamID := uuid.New()
	g := &models.Game{
		ID:          uuid.New(),
		Status:      models.GameStatusEdit,
		Kind:        models.GameKindFixedRounds,
		ScorePolicy: models.ScorePolicyRanking,
		OrganizerID: "org",
		TeamIDs:     []uuid.UUID{teamID},
	}
	teams := []models.Team{{ID: teamID, GameID: g.ID, Name: "solo", PlayerIDs: []string{"p0"}}}
	if err := s.Seed(g, teams, nil, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s, clock, g
}

func TestRunTxRetriesOnConflict(t *testing.T) {
	s, _, g := seedStore(t)
	ctx := context.Background()

	attempts := 0
	err := s.RunTx(ctx, g.ID, func(tx store.Tx) error {
		attempts++
		game, err := tx.Game()
		if err != nil {
			return err
		}
		if attempts == 1 {
			// Interleave a competing write so the first commit fails.
			if err := s.RunTx(ctx, g.ID, func(inner store.Tx) error {
				ig, err := inner.Game()
				if err != nil {
					return err
				}
				ig.RoundsPlayed++
				return inner.PutGame(ig)
			}); err != nil {
				return err
			}
		}
		game.Status = models.GameStatusStart
		return tx.PutGame(game)
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}

	// Both writes survived the retry.
	err = s.RunTx(ctx, g.ID, func(tx store.Tx) error {
		game, err := tx.Game()
		if err != nil {
			return err
		}
		if game.Status != models.GameStatusStart || game.RoundsPlayed != 1 {
			return fmt.Errorf("final state %s/%d", game.Status, game.RoundsPlayed)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunTxDoesNotRetryPreconditions(t *testing.T) {
	s, _, g := seedStore(t)

	attempts := 0
	err := s.RunTx(context.Background(), g.ID, func(tx store.Tx) error {
		attempts++
		return fmt.Errorf("%w: guard failed", store.ErrPrecondition)
	})
	if !errors.Is(err, store.ErrPrecondition) {
		t.Fatalf("got %v, want precondition failure", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestGetMissingDocument(t *testing.T) {
	s, _, g := seedStore(t)

	err := s.RunTx(context.Background(), g.ID, func(tx store.Tx) error {
		_, err := tx.Round(uuid.New())
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestSubscribeDeliversInCommitOrder(t *testing.T) {
	s, _, g := seedStore(t)
	ctx := context.Background()

	ch, cancel, err := s.Subscribe(ctx, g.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	err = s.RunTx(ctx, g.ID, func(tx store.Tx) error {
		if err := tx.Emit(events.TypeGameStatusChanged, map[string]string{"to": "START"}); err != nil {
			return err
		}
		return tx.Emit(events.TypeScoreUpdated, map[string]string{"round": "r1"})
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	// An unrelated game's events must not leak into this feed.
	other := &models.Game{ID: uuid.New(), TeamIDs: []uuid.UUID{}}
	if err := s.Seed(other, nil, nil, nil); err != nil {
		t.Fatalf("seed other: %v", err)
	}
	err = s.RunTx(ctx, other.ID, func(tx store.Tx) error {
		return tx.Emit(events.TypeGameEnded, map[string]string{})
	})
	if err != nil {
		t.Fatalf("RunTx other: %v", err)
	}

	want := []events.Type{events.TypeGameStatusChanged, events.TypeScoreUpdated}
	for i, typ := range want {
		select {
		case env := <-ch:
			if env.Type != typ {
				t.Fatalf("event %d = %s, want %s", i, env.Type, typ)
			}
			if env.GameID != g.ID.String() {
				t.Fatalf("event %d for game %s, want %s", i, env.GameID, g.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	select {
	case env := <-ch:
		t.Fatalf("unexpected extra event %s", env.Type)
	default:
	}
}

func TestSubscribeKeepsEveryCommittedEvent(t *testing.T) {
	s, _, g := seedStore(t)
	ctx := context.Background()

	ch, cancel, err := s.Subscribe(ctx, g.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	const (
		writers         = 4
		eventsPerWriter = 200
	)

	// Consume concurrently; the total exceeds the channel buffer, so the
	// store has to apply backpressure instead of shedding events.
	type payload struct {
		Writer int `json:"writer"`
		Seq    int `json:"seq"`
	}
	received := make(chan payload, writers*eventsPerWriter)
	go func() {
		for env := range ch {
			var p payload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				t.Errorf("unmarshal payload: %v", err)
				return
			}
			received <- p
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < eventsPerWriter; i++ {
				err := s.RunTx(ctx, g.ID, func(tx store.Tx) error {
					return tx.Emit(events.TypeScoreUpdated, payload{Writer: w, Seq: i})
				})
				if err != nil {
					t.Errorf("writer %d seq %d: %v", w, i, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	next := make([]int, writers)
	for n := 0; n < writers*eventsPerWriter; n++ {
		select {
		case p := <-received:
			// Within a writer, commit order is emit order; a gap means a
			// delivery was lost, a regression means it was reordered.
			if p.Seq != next[p.Writer] {
				t.Fatalf("writer %d delivered seq %d, want %d", p.Writer, p.Seq, next[p.Writer])
			}
			next[p.Writer]++
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of %d events", n, writers*eventsPerWriter)
		}
	}
}

func TestCancelUnblocksPendingDelivery(t *testing.T) {
	s, _, g := seedStore(t)
	ctx := context.Background()

	_, cancel, err := s.Subscribe(ctx, g.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Nobody reads the channel, so commits block once the buffer fills.
	done := make(chan error, 1)
	go func() {
		for i := 0; i < 300; i++ {
			err := s.RunTx(ctx, g.ID, func(tx store.Tx) error {
				return tx.Emit(events.TypeScoreUpdated, map[string]int{"seq": i})
			})
			if err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("writer: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("commits still blocked after the subscription was cancelled")
	}
}

func TestDeadlineQueries(t *testing.T) {
	s, clock, g := seedStore(t)
	ctx := context.Background()

	// No running countdown, nothing scheduled.
	dl, err := s.NextDeadline(ctx)
	if err != nil {
		t.Fatalf("NextDeadline: %v", err)
	}
	if dl != nil {
		t.Fatalf("deadline = %+v, want none", dl)
	}

	err = s.RunTx(ctx, g.ID, func(tx store.Tx) error {
		tm, err := tx.Timer()
		if err != nil {
			return err
		}
		timer.Reset(tm, 30, tx.Now())
		if err := timer.Start(tm, "org", tx.Now()); err != nil {
			return err
		}
		return tx.PutTimer(tm)
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	dl, err = s.NextDeadline(ctx)
	if err != nil {
		t.Fatalf("NextDeadline: %v", err)
	}
	if dl == nil || dl.GameID != g.ID {
		t.Fatalf("deadline = %+v, want game %s", dl, g.ID)
	}
	wantAt := clock.Now().UTC().Add(30 * time.Second)
	if !dl.At.Equal(wantAt) {
		t.Fatalf("deadline at %s, want %s", dl.At, wantAt)
	}

	due, err := s.DueGames(ctx, 10)
	if err != nil {
		t.Fatalf("DueGames: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due before the deadline: %v", due)
	}

	clock.Advance(31 * time.Second)
	due, err = s.DueGames(ctx, 10)
	if err != nil {
		t.Fatalf("DueGames: %v", err)
	}
	if len(due) != 1 || due[0] != g.ID {
		t.Fatalf("due = %v, want [%s]", due, g.ID)
	}
}

func TestNowUsesInjectedClock(t *testing.T) {
	s, clock, _ := seedStore(t)

	now, err := s.Now(context.Background())
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	if !now.Equal(clock.Now().UTC()) {
		t.Fatalf("now = %s, want %s", now, clock.Now().UTC())
	}
}
