package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/pkg/database"
)

// GormStore keeps players in the players table.
type GormStore struct {
	db *database.DB
}

func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db}
}

// LoadPlayers returns every player ordered by id.
func (s *GormStore) LoadPlayers(ctx context.Context) ([]models.Player, error) {
	var players []models.Player
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&players).Error; err != nil {
		return nil, fmt.Errorf("failed to load players: %w", err)
	}
	return players, nil
}

func (s *GormStore) Source() string {
	return SourceDatabase
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Player{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}

// ReplaceAll swaps the table contents for players in one transaction.
func (s *GormStore) ReplaceAll(ctx context.Context, players []models.Player) error {
	for _, p := range players {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Player{}).Error; err != nil {
			return fmt.Errorf("failed to clear players: %w", err)
		}
		if len(players) == 0 {
			return nil
		}
		rows := make([]models.Player, len(players))
		copy(rows, players)
		if err := tx.CreateInBatches(&rows, 100).Error; err != nil {
			return fmt.Errorf("failed to insert players: %w", err)
		}
		return nil
	})
}
