package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trivium-live/trivium/go/internal/engine/game"
	"github.com/trivium-live/trivium/go/internal/gateway"
	"github.com/trivium-live/trivium/go/internal/outbox"
	"github.com/trivium-live/trivium/go/internal/presence"
	"github.com/trivium-live/trivium/go/internal/scheduler"
	"github.com/trivium-live/trivium/go/internal/store/pgstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := loadConfig(getEnv("CONFIG_PATH", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := pgstore.New(ctx, databaseDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("connect store")
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate store")
	}

	engine := game.NewEngine(st, log.Logger)

	// Countdown expiry loop.
	sched := scheduler.New(st, engine, clockwork.NewRealClock())
	go func() {
		if err := sched.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	// Presence over redis.
	rdb := redis.NewClient(&redis.Options{Addr: getEnv("REDIS_ADDR", cfg.Redis.Addr)})
	defer rdb.Close()
	pres := presence.New(rdb, st, cfg.presenceTTL())

	// Realtime edge.
	gw := gateway.New(engine, st, pres, gateway.DefaultConfig())

	// Outbox relay to the bus.
	db, err := setupDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("connect outbox database")
	}
	defer db.Close()

	publisher, err := setupPublisher(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect event bus")
	}

	relayCfg := outbox.DefaultConfig()
	relayCfg.PollInterval = cfg.outboxPollInterval()
	relayCfg.BatchSize = int32(cfg.Outbox.BatchSize)
	relay := outbox.NewWorker(db, outbox.NewRepository(db), publisher, relayCfg, log.Logger)
	if err := relay.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start outbox relay")
	}
	defer func() { _ = relay.Stop() }()

	// Cross-instance event fan-out (NATS deployments only).
	if cfg.Bus.Kind == "nats" {
		consumer, err := gateway.NewConsumer(gw, getEnv("NATS_URL", cfg.Bus.NATS.URL),
			cfg.Bus.NATS.Stream, cfg.Bus.NATS.SubjectPrefix, "gateway-"+getEnv("INSTANCE_ID", "0"))
		if err != nil {
			log.Fatal().Err(err).Msg("connect gateway consumer")
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("gateway consumer stopped")
			}
		}()
	}

	server := setupServer(cfg, gw, st)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}

func setupPublisher(cfg *Config) (outbox.EventPublisher, error) {
	switch cfg.Bus.Kind {
	case "rabbitmq":
		return outbox.NewAMQPPublisher(getEnv("RABBITMQ_URL", cfg.Bus.RabbitMQ.URL), cfg.Bus.RabbitMQ.Exchange)
	default:
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = getEnv("NATS_URL", cfg.Bus.NATS.URL)
		jsCfg.StreamName = cfg.Bus.NATS.Stream
		jsCfg.SubjectPrefix = cfg.Bus.NATS.SubjectPrefix
		return outbox.NewJetStreamPublisher(jsCfg)
	}
}
