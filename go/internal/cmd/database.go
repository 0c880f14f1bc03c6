package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

func databaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_HOST", "localhost"),
		getEnvAsInt("DB_PORT", 5432),
		getEnv("DB_NAME", "trivium"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

// setupDatabase opens the database/sql handle the outbox relay polls with.
// The engine's store keeps its own pgx pool over the same DSN.
func setupDatabase() (*sql.DB, error) {
	dsn := databaseDSN()
	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().
		Str("host", getEnv("DB_HOST", "localhost")).
		Str("database", getEnv("DB_NAME", "trivium")).
		Msg("connected to database")
	return database, nil
}
