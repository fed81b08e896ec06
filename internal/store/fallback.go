package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
)

// FallbackStore reads from the database when it has players and falls back
// to the CSV file otherwise. With autoSync set, an empty database is seeded
// from the CSV file first.
type FallbackStore struct {
	db       *GormStore
	csv      *CSVStore
	autoSync bool
	logger   *logrus.Entry

	mu     sync.RWMutex
	source string
}

// NewFallbackStore accepts a nil db for CSV-only deployments.
func NewFallbackStore(db *GormStore, csv *CSVStore, autoSync bool, logger *logrus.Entry) *FallbackStore {
	if logger == nil {
		logger = logrus.WithField("component", "player_store")
	}
	return &FallbackStore{db: db, csv: csv, autoSync: autoSync, logger: logger, source: SourceCSV}
}

func (s *FallbackStore) LoadPlayers(ctx context.Context) ([]models.Player, error) {
	if s.db != nil {
		players, err := s.loadFromDatabase(ctx)
		if err == nil && len(players) > 0 {
			s.setSource(SourceDatabase)
			return players, nil
		}
		if err != nil {
			s.logger.WithError(err).Warn("Database unavailable, falling back to CSV")
		}
	}

	if s.csv == nil {
		return nil, fmt.Errorf("no player source configured")
	}
	players, err := s.csv.LoadPlayers(ctx)
	if err != nil {
		return nil, err
	}
	s.setSource(SourceCSV)
	s.logger.WithFields(logrus.Fields{
		"path":    s.csv.Path(),
		"players": len(players),
	}).Info("Using CSV as data source")
	return players, nil
}

func (s *FallbackStore) loadFromDatabase(ctx context.Context) ([]models.Player, error) {
	players, err := s.db.LoadPlayers(ctx)
	if err != nil {
		return nil, err
	}
	if len(players) > 0 {
		s.logger.WithField("players", len(players)).Debug("Using database as data source")
		return players, nil
	}

	if !s.autoSync || s.csv == nil {
		s.logger.Warn("Database is empty; consider syncing CSV data")
		return nil, nil
	}

	s.logger.Info("Database is empty, syncing from CSV")
	n, err := s.Sync(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Auto-sync failed")
		return nil, nil
	}
	s.logger.WithField("players", n).Info("Synced players from CSV to database")
	return s.db.LoadPlayers(ctx)
}

// Sync replaces the database contents with the CSV file and returns the number
// of players written.
func (s *FallbackStore) Sync(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not available, cannot sync CSV data")
	}
	players, err := s.csv.LoadPlayers(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.db.ReplaceAll(ctx, players); err != nil {
		return 0, err
	}
	return len(players), nil
}

func (s *FallbackStore) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *FallbackStore) setSource(src string) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}
