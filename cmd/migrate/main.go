package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/cricket-optimizer/internal/store"
	"github.com/jstittsworth/cricket-optimizer/pkg/config"
	"github.com/jstittsworth/cricket-optimizer/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|seed] [players.csv]")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	command := os.Args[1]

	switch command {
	case "up":
		if err := db.Migrate(); err != nil {
			logrus.Fatalf("Failed to run migrations: %v", err)
		}
		logrus.Info("Migrations completed successfully")

	case "down":
		if err := db.DropAll(); err != nil {
			logrus.Fatalf("Failed to drop tables: %v", err)
		}
		logrus.Info("Tables dropped successfully")

	case "seed":
		path := cfg.PlayersCSV
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		n, err := seedPlayers(db, path)
		if err != nil {
			logrus.Fatalf("Failed to seed data: %v", err)
		}
		logrus.WithFields(logrus.Fields{"players": n, "path": path}).Info("Data seeded successfully")

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

// seedPlayers replaces the players table with the contents of a CSV file.
func seedPlayers(db *database.DB, path string) (int, error) {
	if err := db.Migrate(); err != nil {
		return 0, err
	}

	ctx := context.Background()
	players, err := store.NewCSVStore(path).LoadPlayers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := store.NewGormStore(db).ReplaceAll(ctx, players); err != nil {
		return 0, err
	}
	return len(players), nil
}
