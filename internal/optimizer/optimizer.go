// Package optimizer selects a fixed-size cricket team that maximizes a score
// objective within a budget. It formulates the selection as a 0/1 integer
// program and hands it to a pluggable solver.Solver.
package optimizer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/internal/solver"
)

// budgetTolerance absorbs float error in the solver's budget row.
const budgetTolerance = 1e-6

// Optimizer is stateless between calls and safe for concurrent use as long as
// its Solver is.
type Optimizer struct {
	solver solver.Solver
	logger *logrus.Entry
}

func New(s solver.Solver, logger *logrus.Entry) *Optimizer {
	if logger == nil {
		logger = logrus.WithField("component", "optimizer")
	}
	return &Optimizer{solver: s, logger: logger}
}

// Optimize selects exactly req.TeamSize players from pool. The pool must
// already be scored and is never modified. Errors are *ValidationError,
// *InfeasibleError or *OptimizerError.
func (o *Optimizer) Optimize(ctx context.Context, pool []models.Player, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := validatePool(pool); err != nil {
		return nil, err
	}

	candidates, locked := selectCandidates(pool, req)
	if len(req.PlayerIDs) > 0 && len(candidates) == 0 {
		return nil, infeasible("None of the requested player ids match the player pool")
	}
	if err := checkFeasibility(candidates, locked, req); err != nil {
		o.logger.WithFields(logrus.Fields{
			"budget":     req.Budget,
			"team_size":  req.TeamSize,
			"candidates": len(candidates),
		}).WithError(err).Info("Optimization rejected before solve")
		return nil, err
	}
	candidates, locked = affordable(candidates, locked, req.Budget)

	prob := buildProblem(candidates, locked, req)

	start := time.Now()
	sol, err := o.solver.Solve(ctx, prob)
	elapsed := time.Since(start)

	log := o.logger.WithFields(logrus.Fields{
		"strategy":   req.Strategy,
		"budget":     req.Budget,
		"team_size":  req.TeamSize,
		"candidates": len(candidates),
		"status":     sol.Status.String(),
		"nodes":      sol.Nodes,
		"solve_ms":   elapsed.Milliseconds(),
	})

	if err != nil {
		log.WithError(err).Error("Solver failed")
		return nil, &OptimizerError{Status: solver.StatusError, Err: err}
	}

	switch sol.Status {
	case solver.StatusOptimal:
	case solver.StatusInfeasible:
		log.Info("No feasible team")
		return nil, infeasible("No optimal solution found. Status: %s", sol.Status)
	default:
		log.Error("Solver returned an unexpected status")
		return nil, &OptimizerError{Status: sol.Status}
	}

	if len(sol.Values) != len(candidates) {
		return nil, &OptimizerError{Status: sol.Status, Err: errValueCount(len(sol.Values), len(candidates))}
	}

	team := make([]models.Player, 0, req.TeamSize)
	for _, i := range sol.Selected() {
		team = append(team, candidates[i])
	}

	res := assemble(team, req)
	res.Objective = sol.Objective
	res.SolveTimeMs = elapsed.Milliseconds()
	res.NodesExplored = sol.Nodes

	if len(team) != req.TeamSize || res.TotalCost > req.Budget+budgetTolerance {
		log.WithFields(logrus.Fields{
			"selected":   len(team),
			"total_cost": res.TotalCost,
		}).Error("Solver returned a team that breaks the constraints")
		return nil, &OptimizerError{Status: sol.Status, Err: errBrokenTeam(len(team), res.TotalCost)}
	}

	log.WithFields(logrus.Fields{
		"total_cost":  res.TotalCost,
		"total_score": res.TotalScore,
	}).Info("Optimization completed")
	return res, nil
}

func assemble(team []models.Player, req Request) *Result {
	cost, score := totals(team)
	budget := decimal.NewFromFloat(req.Budget)

	res := &Result{
		Players:         team,
		TotalCost:       cost.InexactFloat64(),
		TotalScore:      score.InexactFloat64(),
		Strategy:        req.Strategy,
		Budget:          req.Budget,
		BudgetRemaining: budget.Sub(cost).InexactFloat64(),
		TeamSize:        req.TeamSize,
		RoleCounts:      models.CountByRole(team),
	}

	strikeRate := decimal.Zero
	for _, p := range team {
		res.TotalRuns += p.Runs
		res.TotalWickets += p.Wickets
		strikeRate = strikeRate.Add(decimal.NewFromFloat(p.StrikeRate))
	}
	if len(team) > 0 {
		res.AvgStrikeRate = strikeRate.Div(decimal.NewFromInt(int64(len(team)))).Round(2).InexactFloat64()
	}
	return res
}
