package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/trivium-live/trivium/go/internal/gateway"
	"github.com/trivium-live/trivium/go/internal/store"
)

func setupServer(cfg *Config, gw *gateway.Gateway, st store.Store) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	mux.Handle("/ws", gw)
	setupHealthCheck(mux, gw)
	setupTimeEndpoint(mux, st)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", getEnv("PORT", cfg.Server.Port)),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux, gw *gateway.Gateway) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"connections": gw.Stats(),
		}); err != nil {
			log.Error().Err(err).Msg("write health response")
		}
	})
}

// setupTimeEndpoint serves the authoritative clock over plain HTTP so
// clients can estimate their offset before the websocket is up.
func setupTimeEndpoint(mux *http.ServeMux, st store.Store) {
	mux.HandleFunc("/time", func(w http.ResponseWriter, r *http.Request) {
		now, err := st.Now(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"server_time_ms": now.UnixMilli(),
			"received_at_ms": time.Now().UnixMilli(),
		})
	})
}
