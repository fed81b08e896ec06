package optimizer

import (
	"fmt"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/internal/solver"
)

// objectiveCoefficient is the per-player weight for the chosen strategy.
func objectiveCoefficient(p models.Player, s Strategy) float64 {
	if s == StrategyMaxScorePerCost {
		return p.Efficiency()
	}
	return p.Score
}

// buildProblem formulates team selection as a 0/1 program with one variable
// per candidate, in candidate order:
//
//	maximize   sum(obj_i * x_i)
//	subject to sum(price_i * x_i) <= budget
//	           sum(x_i) = team_size
//	           sum(x_i for i in role r) = count_r   (per requested role)
//	           x_i = 1                              (per locked player)
func buildProblem(candidates []models.Player, locked []bool, req Request) *solver.Problem {
	n := len(candidates)
	prob := solver.NewProblem("cricket_team_selection", true)
	for i, p := range candidates {
		prob.AddVariable(fmt.Sprintf("player_%d", i), objectiveCoefficient(p, req.Strategy))
	}

	prices := make([]float64, n)
	ones := make([]float64, n)
	for i, p := range candidates {
		prices[i] = p.Price
		ones[i] = 1
	}
	prob.AddConstraint(solver.Constraint{Name: "budget", Coeffs: prices, Sense: solver.LessEqual, RHS: req.Budget})
	prob.AddConstraint(solver.Constraint{Name: "team_size", Coeffs: ones, Sense: solver.Equal, RHS: float64(req.TeamSize)})

	for _, role := range sortedRoles(req.RoleConstraints) {
		row := make([]float64, n)
		for i, p := range candidates {
			if p.Role == role {
				row[i] = 1
			}
		}
		prob.AddConstraint(solver.Constraint{
			Name:   "role_" + role.String(),
			Coeffs: row,
			Sense:  solver.Equal,
			RHS:    float64(req.RoleConstraints[role]),
		})
	}

	for i, l := range locked {
		if !l {
			continue
		}
		row := make([]float64, n)
		row[i] = 1
		prob.AddConstraint(solver.Constraint{
			Name:   "locked_" + candidates[i].Key(),
			Coeffs: row,
			Sense:  solver.Equal,
			RHS:    1,
		})
	}
	return prob
}

// selectCandidates applies the id restriction, exclusions and the per-player
// budget cut, preserving pool order. Players priced above the whole budget
// can never be chosen, so they are dropped unless locked.
func selectCandidates(pool []models.Player, req Request) ([]models.Player, []bool) {
	var restrict map[uint]bool
	if len(req.PlayerIDs) > 0 {
		restrict = idSet(req.PlayerIDs)
	}
	excluded := idSet(req.ExcludedPlayerIDs)
	lockedIDs := idSet(req.LockedPlayerIDs)

	candidates := make([]models.Player, 0, len(pool))
	locked := make([]bool, 0, len(pool))
	for _, p := range pool {
		if restrict != nil && !restrict[p.ID] {
			continue
		}
		if excluded[p.ID] {
			continue
		}
		candidates = append(candidates, p)
		locked = append(locked, lockedIDs[p.ID])
	}
	return candidates, locked
}

func affordable(candidates []models.Player, locked []bool, budget float64) ([]models.Player, []bool) {
	outP := make([]models.Player, 0, len(candidates))
	outL := make([]bool, 0, len(locked))
	for i, p := range candidates {
		if p.Price > budget && !locked[i] {
			continue
		}
		outP = append(outP, p)
		outL = append(outL, locked[i])
	}
	return outP, outL
}
