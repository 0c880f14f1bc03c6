package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/trivium-live/trivium/go/internal/events"
)

// Consumer feeds bus events into the gateway's broadcast path. Multi-instance
// deployments run it so every instance forwards events for games whose
// commands were handled elsewhere; single-instance setups can rely on the
// store subscription alone.
type Consumer struct {
	gateway  *Gateway
	nc       *nats.Conn
	js       jetstream.JetStream
	stream   string
	subjects string
	name     string
}

// busEvent mirrors the envelope the outbox publishers emit.
type busEvent struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	GameID    string          `json:"gameId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewConsumer(gw *Gateway, natsURL, stream, subjectPrefix, name string) (*Consumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &Consumer{
		gateway:  gw,
		nc:       nc,
		js:       js,
		stream:   stream,
		subjects: subjectPrefix + ".>",
		name:     name,
	}, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.stream)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.Consumer(ctx, c.name)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
			Name:          c.name,
			Durable:       c.name,
			Description:   "gateway event fan-out",
			FilterSubject: c.subjects,
			DeliverPolicy: jetstream.DeliverNewPolicy,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxAckPending: 1024,
			ReplayPolicy:  jetstream.ReplayInstantPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := c.processMsg(msg); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("process bus event")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	return nil
}

func (c *Consumer) processMsg(msg jetstream.Msg) error {
	var ev busEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		return fmt.Errorf("unmarshal bus event: %w", err)
	}
	gameID, err := uuid.Parse(ev.GameID)
	if err != nil {
		return fmt.Errorf("parse game id: %w", err)
	}
	c.gateway.broadcast(gameID, events.Envelope{
		ID:        ev.EventID,
		GameID:    ev.GameID,
		Type:      events.Type(ev.EventType),
		Timestamp: ev.Timestamp,
		Data:      ev.Payload,
	})
	return nil
}

func (c *Consumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
