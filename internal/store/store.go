// Package store loads player records from a database or a CSV file.
package store

import (
	"context"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
)

const (
	SourceDatabase = "database"
	SourceCSV      = "csv"
)

// PlayerStore supplies an ordered, unscored player pool.
type PlayerStore interface {
	LoadPlayers(ctx context.Context) ([]models.Player, error)
	// Source names where the last successful load came from.
	Source() string
}
