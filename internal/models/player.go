package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is a player's fielding role.
type Role string

const (
	RoleWicketKeeper Role = "WK"
	RoleBatter       Role = "BAT"
	RoleBowler       Role = "BOWL"
	RoleAllRounder   Role = "ALL"
)

// Roles lists every role in display order.
var Roles = []Role{RoleWicketKeeper, RoleBatter, RoleBowler, RoleAllRounder}

// Stat bounds enforced by the player store.
const (
	MaxRuns       = 1000
	MaxWickets    = 50
	MaxStrikeRate = 250.0
	MaxPrice      = 100.0
)

// ParseRole normalizes a role string ("bat", " WK ") into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) IsValid() bool {
	switch r {
	case RoleWicketKeeper, RoleBatter, RoleBowler, RoleAllRounder:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

type Player struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"not null;uniqueIndex" json:"name"`
	Role       Role      `gorm:"type:varchar(4);not null;index" json:"role"`
	Runs       int       `gorm:"not null" json:"runs"`
	Wickets    int       `gorm:"not null" json:"wickets"`
	StrikeRate float64   `gorm:"not null" json:"strike_rate"`
	Price      float64   `gorm:"not null" json:"price"`
	Score      float64   `gorm:"-" json:"score"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// TableName specifies the table name for GORM
func (Player) TableName() string {
	return "players"
}

// Key returns the identity used to de-duplicate players: the numeric id when
// set, otherwise the name.
func (p Player) Key() string {
	if p.ID != 0 {
		return fmt.Sprintf("id:%d", p.ID)
	}
	return "name:" + p.Name
}

// Validate checks the record against the store's documented bounds.
func (p Player) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("player name is required")
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("player %s: unknown role %q", p.Name, p.Role)
	}
	if p.Runs < 0 || p.Runs > MaxRuns {
		return fmt.Errorf("player %s: runs must be between 0 and %d, got %d", p.Name, MaxRuns, p.Runs)
	}
	if p.Wickets < 0 || p.Wickets > MaxWickets {
		return fmt.Errorf("player %s: wickets must be between 0 and %d, got %d", p.Name, MaxWickets, p.Wickets)
	}
	if !(p.StrikeRate >= 0 && p.StrikeRate <= MaxStrikeRate) {
		return fmt.Errorf("player %s: strike rate must be between 0 and %.0f, got %.2f", p.Name, MaxStrikeRate, p.StrikeRate)
	}
	if !(p.Price > 0 && p.Price <= MaxPrice) {
		return fmt.Errorf("player %s: price must be greater than 0 and at most %.0f, got %.2f", p.Name, MaxPrice, p.Price)
	}
	return nil
}

// Efficiency is score per unit of price.
func (p Player) Efficiency() float64 {
	if p.Price <= 0 {
		return 0
	}
	return p.Score / p.Price
}

// CountByRole tallies players per role.
func CountByRole(players []Player) map[Role]int {
	counts := make(map[Role]int, len(Roles))
	for _, p := range players {
		counts[p.Role]++
	}
	return counts
}
