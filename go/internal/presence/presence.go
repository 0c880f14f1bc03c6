// Package presence tracks who is connected to each game. Liveness is a
// redis sorted set scored by heartbeat expiry, so crashed clients age out
// without any cleanup process. Player admission is capped by the game's
// MaxPlayers setting.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/trivium-live/trivium/go/internal/store"
)

// ErrGameFull is returned when a player joins a game at its player cap.
var ErrGameFull = errors.New("presence: game full")

const rolePlayer = "player"

// Member is one live client of a game.
type Member struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
}

// Service is the redis-backed presence tracker.
type Service struct {
	rdb   *redis.Client
	store store.Store
	ttl   time.Duration
}

func New(rdb *redis.Client, st store.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Service{rdb: rdb, store: st, ttl: ttl}
}

func liveKey(gameID uuid.UUID) string  { return "presence:" + gameID.String() + ":live" }
func rolesKey(gameID uuid.UUID) string { return "presence:" + gameID.String() + ":roles" }

// Join admits a client. Players count against the game's cap; organizers and
// spectators always get in. Rejoining refreshes the heartbeat.
func (s *Service) Join(ctx context.Context, gameID uuid.UUID, clientID string, role string) error {
	if err := s.prune(ctx, gameID); err != nil {
		return err
	}

	if role == rolePlayer {
		_, err := s.rdb.ZScore(ctx, liveKey(gameID), clientID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("presence: check member: %w", err)
		}
		if errors.Is(err, redis.Nil) {
			max, err := s.maxPlayers(ctx, gameID)
			if err != nil {
				return err
			}
			if max > 0 {
				count, err := s.countPlayers(ctx, gameID)
				if err != nil {
					return err
				}
				if count >= max {
					return ErrGameFull
				}
			}
		}
	}

	expiry := float64(time.Now().Add(s.ttl).Unix())
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, liveKey(gameID), redis.Z{Score: expiry, Member: clientID})
	pipe.HSet(ctx, rolesKey(gameID), clientID, role)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: join: %w", err)
	}
	return nil
}

// Heartbeat extends a client's liveness window.
func (s *Service) Heartbeat(ctx context.Context, gameID uuid.UUID, clientID string) error {
	expiry := float64(time.Now().Add(s.ttl).Unix())
	err := s.rdb.ZAddXX(ctx, liveKey(gameID), redis.Z{Score: expiry, Member: clientID}).Err()
	if err != nil {
		return fmt.Errorf("presence: heartbeat: %w", err)
	}
	return nil
}

// Leave removes a client immediately.
func (s *Service) Leave(ctx context.Context, gameID uuid.UUID, clientID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, liveKey(gameID), clientID)
	pipe.HDel(ctx, rolesKey(gameID), clientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: leave: %w", err)
	}
	return nil
}

// Members lists the live clients of a game.
func (s *Service) Members(ctx context.Context, gameID uuid.UUID) ([]Member, error) {
	if err := s.prune(ctx, gameID); err != nil {
		return nil, err
	}
	ids, err := s.rdb.ZRange(ctx, liveKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: list members: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	roles, err := s.rdb.HGetAll(ctx, rolesKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: list roles: %w", err)
	}
	members := make([]Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, Member{ClientID: id, Role: roles[id]})
	}
	return members, nil
}

// prune drops members whose heartbeat expired.
func (s *Service) prune(ctx context.Context, gameID uuid.UUID) error {
	now := fmt.Sprintf("%d", time.Now().Unix())
	stale, err := s.rdb.ZRangeByScore(ctx, liveKey(gameID), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return fmt.Errorf("presence: find stale members: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, liveKey(gameID), "-inf", now)
	pipe.HDel(ctx, rolesKey(gameID), stale...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: prune: %w", err)
	}
	return nil
}

func (s *Service) countPlayers(ctx context.Context, gameID uuid.UUID) (int, error) {
	roles, err := s.rdb.HGetAll(ctx, rolesKey(gameID)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence: count players: %w", err)
	}
	live, err := s.rdb.ZRange(ctx, liveKey(gameID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("presence: count players: %w", err)
	}
	count := 0
	for _, id := range live {
		if roles[id] == rolePlayer {
			count++
		}
	}
	return count, nil
}

func (s *Service) maxPlayers(ctx context.Context, gameID uuid.UUID) (int, error) {
	var max int
	err := s.store.RunTx(ctx, gameID, func(tx store.Tx) error {
		g, err := tx.Game()
		if err != nil {
			return err
		}
		max = g.MaxPlayers
		return nil
	})
	if err != nil {
		return 0, err
	}
	return max, nil
}
