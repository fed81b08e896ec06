package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
)

func validateRequest(req Request) error {
	if math.IsNaN(req.Budget) || math.IsInf(req.Budget, 0) || req.Budget <= 0 {
		return &ValidationError{Field: "budget", Message: fmt.Sprintf("must be a positive number, got %v", req.Budget)}
	}
	if req.TeamSize <= 0 {
		return &ValidationError{Field: "team_size", Message: fmt.Sprintf("must be a positive integer, got %d", req.TeamSize)}
	}
	if !req.Strategy.IsValid() {
		return &ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", req.Strategy)}
	}

	if len(req.RoleConstraints) > 0 {
		total := 0
		for role, count := range req.RoleConstraints {
			if !role.IsValid() {
				return &ValidationError{Field: "role_constraints", Message: fmt.Sprintf("unknown role %q", role)}
			}
			if count < 0 {
				return &ValidationError{Field: "role_constraints", Message: fmt.Sprintf("count for %s must not be negative", role)}
			}
			total += count
		}
		if total != req.TeamSize {
			return &ValidationError{
				Field:   "role_constraints",
				Message: fmt.Sprintf("role counts sum to %d but team size is %d", total, req.TeamSize),
			}
		}
	}

	excluded := idSet(req.ExcludedPlayerIDs)
	for _, id := range req.LockedPlayerIDs {
		if excluded[id] {
			return &ValidationError{Field: "locked_player_ids", Message: fmt.Sprintf("player %d is both locked and excluded", id)}
		}
	}
	return nil
}

func validatePool(pool []models.Player) error {
	seen := make(map[string]bool, len(pool))
	for _, p := range pool {
		if !(p.Price > 0) || math.IsInf(p.Price, 0) {
			return &ValidationError{Field: "players", Message: fmt.Sprintf("player %s has non-positive price %v", p.Name, p.Price)}
		}
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) {
			return &ValidationError{Field: "players", Message: fmt.Sprintf("player %s has a non-finite score", p.Name)}
		}
		key := p.Key()
		if seen[key] {
			return &ValidationError{Field: "players", Message: fmt.Sprintf("duplicate player identity %s", key)}
		}
		seen[key] = true
	}
	return nil
}

// checkFeasibility rejects requests that cannot possibly be satisfied, before
// a problem is built. locked flags candidates that must be selected.
func checkFeasibility(candidates []models.Player, locked []bool, req Request) error {
	if len(candidates) < req.TeamSize {
		return infeasible("Not enough players: need %d, but only %d available", req.TeamSize, len(candidates))
	}

	lockedCount := 0
	for _, l := range locked {
		if l {
			lockedCount++
		}
	}
	if lockedCount > req.TeamSize {
		return infeasible("%d locked players exceed the team size of %d", lockedCount, req.TeamSize)
	}

	var minCost decimal.Decimal
	if len(req.RoleConstraints) > 0 {
		available := models.CountByRole(candidates)
		lockedByRole := make(map[models.Role]int)
		for i, p := range candidates {
			if locked[i] {
				lockedByRole[p.Role]++
			}
		}
		for _, role := range sortedRoles(req.RoleConstraints) {
			need := req.RoleConstraints[role]
			if available[role] < need {
				return infeasible("Insufficient players for role '%s': required %d, but only %d available", role, need, available[role])
			}
			if lockedByRole[role] > need {
				return infeasible("%d locked %s players exceed the required %d", lockedByRole[role], role, need)
			}
			minCost = minCost.Add(cheapestTeamCost(candidates, locked, need, func(p models.Player) bool { return p.Role == role }))
		}
		for role, n := range lockedByRole {
			if _, ok := req.RoleConstraints[role]; !ok && n > 0 {
				return infeasible("%d locked %s players but the composition allows none", n, role)
			}
		}
	} else {
		minCost = cheapestTeamCost(candidates, locked, req.TeamSize, func(models.Player) bool { return true })
	}

	budget := decimal.NewFromFloat(req.Budget)
	if minCost.GreaterThan(budget) {
		shortfall := minCost.Sub(budget)
		return &InfeasibleError{
			Message: fmt.Sprintf("Budget $%s is insufficient. Minimum possible team cost is $%s. Please increase your budget by at least $%s",
				budget.StringFixed(2), minCost.StringFixed(2), shortfall.StringFixed(2)),
			Shortfall: shortfall.InexactFloat64(),
		}
	}
	return nil
}

// cheapestTeamCost is the cost of the locked players matching keep plus the
// cheapest unlocked ones needed to reach size.
func cheapestTeamCost(candidates []models.Player, locked []bool, size int, keep func(models.Player) bool) decimal.Decimal {
	total := decimal.Zero
	var prices []float64
	taken := 0
	for i, p := range candidates {
		if !keep(p) {
			continue
		}
		if locked[i] {
			total = total.Add(decimal.NewFromFloat(p.Price))
			taken++
			continue
		}
		prices = append(prices, p.Price)
	}
	sort.Float64s(prices)
	for _, price := range prices {
		if taken >= size {
			break
		}
		total = total.Add(decimal.NewFromFloat(price))
		taken++
	}
	return total
}

func sortedRoles(m map[models.Role]int) []models.Role {
	roles := make([]models.Role, 0, len(m))
	for _, r := range models.Roles {
		if _, ok := m[r]; ok {
			roles = append(roles, r)
		}
	}
	return roles
}

func idSet(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// TeamCheck is the outcome of ValidateTeam.
type TeamCheck struct {
	Valid      bool                `json:"valid"`
	Issues     []string            `json:"issues"`
	TotalCost  float64             `json:"total_cost"`
	TotalScore float64             `json:"total_score"`
	RoleCounts map[models.Role]int `json:"role_counts"`
}

// ValidateTeam checks a hand-picked team against a budget, a team size and an
// optional role composition. It reports every problem rather than stopping at
// the first.
func ValidateTeam(team []models.Player, budget float64, teamSize int, roles map[models.Role]int) TeamCheck {
	check := TeamCheck{Issues: []string{}, RoleCounts: models.CountByRole(team)}

	cost, score := totals(team)
	check.TotalCost = cost.InexactFloat64()
	check.TotalScore = score.InexactFloat64()

	if len(team) != teamSize {
		check.Issues = append(check.Issues, fmt.Sprintf("team has %d players, expected %d", len(team), teamSize))
	}
	if cost.GreaterThan(decimal.NewFromFloat(budget)) {
		check.Issues = append(check.Issues, fmt.Sprintf("team costs $%s, over the budget of $%s",
			cost.StringFixed(2), decimal.NewFromFloat(budget).StringFixed(2)))
	}

	seen := make(map[string]bool, len(team))
	for _, p := range team {
		if seen[p.Key()] {
			check.Issues = append(check.Issues, fmt.Sprintf("player %s appears more than once", p.Name))
		}
		seen[p.Key()] = true
	}

	for _, role := range sortedRoles(roles) {
		if got := check.RoleCounts[role]; got != roles[role] {
			check.Issues = append(check.Issues, fmt.Sprintf("team has %d %s players, expected %d", got, role, roles[role]))
		}
	}

	check.Valid = len(check.Issues) == 0
	return check
}

func totals(team []models.Player) (cost, score decimal.Decimal) {
	for _, p := range team {
		cost = cost.Add(decimal.NewFromFloat(p.Price))
		score = score.Add(decimal.NewFromFloat(p.Score))
	}
	return cost, score
}
