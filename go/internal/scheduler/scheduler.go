// Package scheduler fires countdown expiries. It sleeps until the earliest
// running-timer deadline across live games, then hands due games to a worker
// pool that applies the expiry transition. Expiry is idempotent at the store
// level, so duplicate firings and multi-instance overlap are harmless.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/trivium-live/trivium/go/internal/store"
)

// Expirer is the slice of the game engine the scheduler drives.
type Expirer interface {
	Expire(ctx context.Context, gameID uuid.UUID) error
}

type Scheduler struct {
	store      store.Store
	engine     Expirer
	clock      clockwork.Clock
	batchSize  int
	numWorkers int
	instanceID string

	wakeCh chan struct{}
	workCh chan uuid.UUID

	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

// New builds a scheduler. The clock is injectable so tests can drive it with
// a fake.
func New(st store.Store, engine Expirer, clock clockwork.Clock) *Scheduler {
	const numWorkers = 10
	return &Scheduler{
		store:      st,
		engine:     engine,
		clock:      clock,
		batchSize:  32,
		numWorkers: numWorkers,
		instanceID: uuid.New().String()[:8],
		wakeCh:     make(chan struct{}, 1),
		workCh:     make(chan uuid.UUID, numWorkers*2),
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Wake nudges the loop to re-read the next deadline. Called after any commit
// that may have produced a sooner deadline.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run loops until ctx is cancelled: sleep to the next deadline, collect due
// games, dispatch them to workers.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Str("instance", s.instanceID).Int("workers", s.numWorkers).Msg("scheduler started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}
	defer func() {
		cancelWorkers()
		close(s.workCh)
		wg.Wait()
		log.Info().Str("instance", s.instanceID).Msg("all workers shut down")
	}()

	timer := s.clock.NewTimer(time.Hour)
	defer stopAndDrainTimer(timer)

	const idlePollDuration = 5 * time.Second

	for {
		// Drain a stale wake so a fresh one is never lost below.
		select {
		case <-s.wakeCh:
		default:
		}

		next, err := s.store.NextDeadline(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error().Err(err).Str("instance", s.instanceID).Msg("fetching next deadline")
			if !s.sleep(ctx, timer, time.Second) {
				return nil
			}
			continue
		}

		if next == nil {
			if !s.sleep(ctx, timer, idlePollDuration) {
				return nil
			}
			continue
		}

		if wait := next.At.Sub(s.clock.Now()); wait > 0 {
			if !s.sleep(ctx, timer, wait) {
				return nil
			}
			continue
		}

		due, err := s.store.DueGames(ctx, s.batchSize)
		if err != nil {
			log.Error().Err(err).Str("instance", s.instanceID).Msg("fetching due games")
			if !s.sleep(ctx, timer, time.Second) {
				return nil
			}
			continue
		}
		for _, gameID := range due {
			s.inFlightMu.Lock()
			if s.inFlight[gameID] {
				s.inFlightMu.Unlock()
				continue
			}
			s.inFlight[gameID] = true
			s.inFlightMu.Unlock()

			select {
			case <-ctx.Done():
				s.inFlightMu.Lock()
				delete(s.inFlight, gameID)
				s.inFlightMu.Unlock()
				return nil
			case s.workCh <- gameID:
			}
		}
	}
}

// sleep waits for d, a wake, or shutdown. Returns false on shutdown.
func (s *Scheduler) sleep(ctx context.Context, timer clockwork.Timer, d time.Duration) bool {
	timer.Reset(d)
	select {
	case <-timer.Chan():
		return true
	case <-s.wakeCh:
		stopAndDrainTimer(timer)
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case gameID, ok := <-s.workCh:
			if !ok {
				return
			}
			if err := s.engine.Expire(ctx, gameID); err != nil && !errors.Is(err, store.ErrPrecondition) {
				log.Error().
					Err(err).
					Str("game_id", gameID.String()).
					Int("worker_id", workerID).
					Msg("expiry failed")
			} else {
				log.Debug().
					Str("game_id", gameID.String()).
					Int("worker_id", workerID).
					Msg("expiry applied")
			}
			s.inFlightMu.Lock()
			delete(s.inFlight, gameID)
			s.inFlightMu.Unlock()
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a stale tick
// cannot satisfy a later wait.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
