package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/trivium-live/trivium/go/internal/models"
	"github.com/trivium-live/trivium/go/internal/store/pgstore"
)

// Fixture is the JSON shape of one authored game: the game record plus its
// teams, rounds and question bank.
type Fixture struct {
	Game      *models.Game           `json:"game"`
	Teams     []models.Team          `json:"teams"`
	Rounds    []*models.Round        `json:"rounds"`
	Questions []*models.BaseQuestion `json:"questions"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <fixture.json>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read fixture: %v\n", err)
		os.Exit(1)
	}
	var fix Fixture
	if err := json.Unmarshal(data, &fix); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal fixture: %v\n", err)
		os.Exit(1)
	}
	if fix.Game == nil {
		fmt.Fprintln(os.Stderr, "fixture has no game record")
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := pgstore.New(ctx, dsnFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	if err := st.Seed(ctx, fix.Game, fix.Teams, fix.Rounds, fix.Questions); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Game seed complete: game %s, %d teams, %d rounds, %d questions\n",
		fix.Game.ID, len(fix.Teams), len(fix.Rounds), len(fix.Questions))
}

func dsnFromEnv() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getenv("DB_USER", "postgres"),
		getenv("DB_PASSWORD", "postgres"),
		getenv("DB_HOST", "localhost"),
		getenv("DB_PORT", "5432"),
		getenv("DB_NAME", "trivium"),
		getenv("DB_SSLMODE", "disable"),
	)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
