package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/trivium-live/trivium/go/internal/engine/rounds"
	"github.com/trivium-live/trivium/go/internal/store"
)

// Connection is one websocket client.
type Connection struct {
	ID       string
	ClientID string
	GameID   uuid.UUID
	Role     Role

	ws      *websocket.Conn
	send    chan []byte
	gateway *Gateway

	connectedAt time.Time
}

// clientMessage is everything a client may send.
type clientMessage struct {
	Type string `json:"type"` // "command" | "sync"

	// command fields
	Command     string         `json:"command,omitempty"`
	RoundID     string         `json:"round_id,omitempty"`
	DurationSec int            `json:"duration_sec,omitempty"`
	Authorized  bool           `json:"authorized,omitempty"`
	Action      *rounds.Action `json:"action,omitempty"`

	// sync fields
	ClientTime int64 `json:"client_time,omitempty"` // unix milliseconds
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.gateway.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.gateway.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.gateway.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.gateway.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.gateway.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.gateway.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.gateway.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.gateway.config.ReadTimeout))
		if c.gateway.presence != nil {
			_ = c.gateway.presence.Heartbeat(context.Background(), c.GameID, c.ClientID)
		}
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		c.handleMessage(message)
		c.ws.SetReadDeadline(time.Now().Add(c.gateway.config.ReadTimeout))
	}
}

func (c *Connection) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(errorMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case "sync":
		c.handleSync(ctx, msg)
	case "command":
		if err := c.handleCommand(ctx, msg); err != nil {
			if !errors.Is(err, store.ErrPrecondition) {
				log.Error().
					Err(err).
					Str("command", msg.Command).
					Str("game_id", c.GameID.String()).
					Msg("command failed")
			}
			c.reply(errorMessage(err))
		}
	default:
		log.Debug().
			Str("connection_id", c.ID).
			RawJSON("message", raw).
			Msg("ignoring unknown client message")
	}
}

// handleSync answers with paired client/server timestamps so the client can
// estimate its clock offset and render the shared countdown.
func (c *Connection) handleSync(ctx context.Context, msg clientMessage) {
	serverTime, err := c.gateway.store.Now(ctx)
	if err != nil {
		c.reply(errorMessage(err))
		return
	}
	out, err := json.Marshal(serverMessage{
		Type:       "sync",
		ClientTime: msg.ClientTime,
		ServerTime: serverTime.UnixMilli(),
	})
	if err != nil {
		return
	}
	c.reply(out)
}

func (c *Connection) handleCommand(ctx context.Context, msg clientMessage) error {
	if c.Role == RoleSpectator {
		return fmt.Errorf("%w: spectators cannot send commands", store.ErrPrecondition)
	}
	e := c.gateway.engine

	// Player-side commands: gameplay actions only.
	if msg.Command == "ACTION" {
		if msg.Action == nil {
			return errors.New("missing action")
		}
		return e.Do(ctx, c.GameID, c.ClientID, *msg.Action)
	}

	switch msg.Command {
	case "START_GAME":
		return e.StartGame(ctx, c.GameID, c.ClientID)
	case "GO_HOME":
		return e.GoHome(ctx, c.GameID, c.ClientID)
	case "SELECT_ROUND":
		roundID, err := uuid.Parse(msg.RoundID)
		if err != nil {
			return errors.New("invalid round_id")
		}
		return e.SelectRound(ctx, c.GameID, roundID, c.ClientID)
	case "NEXT_QUESTION":
		return e.NextQuestion(ctx, c.GameID, c.ClientID)
	case "RESET_QUESTION":
		return e.ResetQuestion(ctx, c.GameID, c.ClientID)
	case "CLEAR_BUZZER":
		return e.ClearBuzzer(ctx, c.GameID, c.ClientID)
	case "END_ROUND":
		return e.EndRound(ctx, c.GameID, c.ClientID)
	case "END_GAME":
		return e.EndGame(ctx, c.GameID, c.ClientID)
	case "START_TIMER":
		return e.StartTimer(ctx, c.GameID, c.ClientID)
	case "STOP_TIMER":
		return e.StopTimer(ctx, c.GameID, c.ClientID)
	case "RESET_TIMER":
		return e.ResetTimer(ctx, c.GameID, c.ClientID, msg.DurationSec)
	case "END_TIMER":
		return e.EndTimer(ctx, c.GameID, c.ClientID)
	case "AUTHORIZE_PLAYERS":
		return e.AuthorizePlayers(ctx, c.GameID, c.ClientID, msg.Authorized)
	default:
		return errors.New("unknown command " + msg.Command)
	}
}

// sendSnapshot pushes the full live state, redacted for non-organizers.
func (c *Connection) sendSnapshot(ctx context.Context) {
	snap, err := c.gateway.engine.Snapshot(ctx, c.GameID)
	if err != nil {
		log.Error().Err(err).Str("game_id", c.GameID.String()).Msg("snapshot failed")
		c.reply(errorMessage(err))
		return
	}
	if c.Role != RoleOrganizer {
		snap.RedactForPlayers()
	}
	out, err := json.Marshal(serverMessage{Type: "snapshot", Snapshot: snap})
	if err != nil {
		return
	}
	c.reply(out)
}

func (c *Connection) reply(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}
