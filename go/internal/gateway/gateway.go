// Package gateway is the realtime edge: it upgrades client connections to
// websockets, fans committed game events out to every connection of a game,
// and routes client commands into the engine. Clients get a full state
// snapshot on join and a clock-sync reply on demand, so reconnects never
// need event replay.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/trivium-live/trivium/go/internal/engine/game"
	"github.com/trivium-live/trivium/go/internal/events"
	"github.com/trivium-live/trivium/go/internal/store"
)

// Role is what a connection is allowed to do.
type Role string

const (
	RoleOrganizer Role = "organizer"
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Presence is the admission and liveness surface the gateway reports into.
type Presence interface {
	Join(ctx context.Context, gameID uuid.UUID, clientID string, role string) error
	Leave(ctx context.Context, gameID uuid.UUID, clientID string) error
	Heartbeat(ctx context.Context, gameID uuid.UUID, clientID string) error
}

// Config holds websocket connection tuning.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// Gateway manages the connections of all live games on this instance.
type Gateway struct {
	engine   *game.Engine
	store    store.Store
	presence Presence
	config   Config
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	games map[uuid.UUID]*gamePool
}

// gamePool is the set of connections of one game plus its event feed.
type gamePool struct {
	conns  map[*Connection]bool
	cancel func()
}

func New(engine *game.Engine, st store.Store, presence Presence, config Config) *Gateway {
	return &Gateway{
		engine:   engine,
		store:    st,
		presence: presence,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		games: make(map[uuid.UUID]*gamePool),
	}
}

// ServeHTTP upgrades one client. Expects game_id, client_id and role query
// parameters.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(r.URL.Query().Get("game_id"))
	if err != nil {
		http.Error(w, "invalid game_id", http.StatusBadRequest)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		http.Error(w, "missing client_id", http.StatusBadRequest)
		return
	}
	role := Role(r.URL.Query().Get("role"))
	switch role {
	case RoleOrganizer, RolePlayer, RoleSpectator:
	default:
		role = RoleSpectator
	}

	if g.presence != nil {
		if err := g.presence.Join(r.Context(), gameID, clientID, string(role)); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		ClientID:    clientID,
		GameID:      gameID,
		Role:        role,
		ws:          ws,
		send:        make(chan []byte, 256),
		gateway:     g,
		connectedAt: time.Now(),
	}
	g.register(conn)

	go conn.writePump()
	go conn.readPump()

	conn.sendSnapshot(context.Background())

	log.Info().
		Str("connection_id", conn.ID).
		Str("client_id", clientID).
		Str("game_id", gameID.String()).
		Str("role", string(role)).
		Msg("websocket connection established")
}

// register adds a connection and starts the game's event feed when it is the
// first one.
func (g *Gateway) register(conn *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pool := g.games[conn.GameID]
	if pool == nil {
		pool = &gamePool{conns: make(map[*Connection]bool)}
		g.games[conn.GameID] = pool
		g.startFeed(conn.GameID, pool)
	}
	pool.conns[conn] = true
}

func (g *Gateway) unregister(conn *Connection) {
	g.mu.Lock()
	pool := g.games[conn.GameID]
	if pool != nil && pool.conns[conn] {
		delete(pool.conns, conn)
		close(conn.send)
		if len(pool.conns) == 0 {
			if pool.cancel != nil {
				pool.cancel()
			}
			delete(g.games, conn.GameID)
		}
	}
	g.mu.Unlock()

	if g.presence != nil {
		_ = g.presence.Leave(context.Background(), conn.GameID, conn.ClientID)
	}
}

// startFeed subscribes to the game's committed events and broadcasts them.
// Caller holds g.mu.
func (g *Gateway) startFeed(gameID uuid.UUID, pool *gamePool) {
	ctx, cancel := context.WithCancel(context.Background())
	pool.cancel = cancel

	ch, release, err := g.store.Subscribe(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("event subscription failed")
		return
	}
	go func() {
		defer release()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				g.broadcast(gameID, env)
			}
		}
	}()
}

func (g *Gateway) broadcast(gameID uuid.UUID, env events.Envelope) {
	msg, err := json.Marshal(serverMessage{Type: "event", Event: &env})
	if err != nil {
		log.Error().Err(err).Msg("marshal event broadcast")
		return
	}

	g.mu.RLock()
	pool := g.games[gameID]
	var targets []*Connection
	if pool != nil {
		for conn := range pool.conns {
			targets = append(targets, conn)
		}
	}
	g.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.send <- msg:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Str("client_id", conn.ClientID).
				Msg("send buffer full, closing connection")
			g.unregister(conn)
			conn.ws.Close()
		}
	}
}

// Stats reports active connection counts, exposed on the health endpoint.
func (g *Gateway) Stats() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	perGame := make(map[string]int, len(g.games))
	for id, pool := range g.games {
		perGame[id.String()] = len(pool.conns)
		total += len(pool.conns)
	}
	return map[string]any{
		"total_connections": total,
		"active_games":      len(g.games),
		"game_connections":  perGame,
	}
}

// serverMessage is the envelope of everything the gateway writes to clients.
type serverMessage struct {
	Type       string           `json:"type"`
	Event      *events.Envelope `json:"event,omitempty"`
	Snapshot   *game.Snapshot   `json:"snapshot,omitempty"`
	Error      string           `json:"error,omitempty"`
	ClientTime int64            `json:"client_time,omitempty"` // echoed for offset estimation
	ServerTime int64            `json:"server_time,omitempty"` // unix milliseconds
}

func errorMessage(err error) []byte {
	msg, mErr := json.Marshal(serverMessage{Type: "error", Error: err.Error()})
	if mErr != nil {
		return []byte(fmt.Sprintf(`{"type":"error","error":%q}`, err.Error()))
	}
	return msg
}
