package optimizer

import (
	"fmt"
	"strings"

	"github.com/jstittsworth/cricket-optimizer/internal/models"
	"github.com/jstittsworth/cricket-optimizer/internal/solver"
)

// Strategy selects the objective maximized by the optimizer.
type Strategy string

const (
	// StrategyMaxScore maximizes the summed score of the team.
	StrategyMaxScore Strategy = "MAX_SCORE"
	// StrategyMaxScorePerCost maximizes the sum of each player's score/price.
	// This is a linear surrogate for team efficiency, not the ratio of total
	// score to total cost.
	StrategyMaxScorePerCost Strategy = "MAX_SCORE_PER_COST"
)

// DefaultTeamSize is the roster size used when a caller does not set one.
const DefaultTeamSize = 11

// ParseStrategy accepts either enum spelling in any case. An empty string
// selects MAX_SCORE.
func ParseStrategy(s string) (Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return StrategyMaxScore, nil
	}
	st := Strategy(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", &ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", s)}
	}
	return st, nil
}

func (s Strategy) IsValid() bool {
	return s == StrategyMaxScore || s == StrategyMaxScorePerCost
}

// Request describes one optimization. Only Budget, Strategy and TeamSize are
// required; the remaining fields narrow or shape the candidate pool.
type Request struct {
	Budget            float64
	Strategy          Strategy
	TeamSize          int
	PlayerIDs         []uint
	RoleConstraints   map[models.Role]int
	LockedPlayerIDs   []uint
	ExcludedPlayerIDs []uint
}

// Result is a feasible team plus aggregate metrics.
type Result struct {
	Players         []models.Player     `json:"players"`
	TotalCost       float64             `json:"total_cost"`
	TotalScore      float64             `json:"total_score"`
	Objective       float64             `json:"objective"`
	Strategy        Strategy            `json:"strategy"`
	Budget          float64             `json:"budget"`
	BudgetRemaining float64             `json:"budget_remaining"`
	TeamSize        int                 `json:"team_size"`
	TotalRuns       int                 `json:"total_runs"`
	TotalWickets    int                 `json:"total_wickets"`
	AvgStrikeRate   float64             `json:"avg_strike_rate"`
	RoleCounts      map[models.Role]int `json:"role_counts"`
	SolveTimeMs     int64               `json:"solve_time_ms"`
	NodesExplored   int                 `json:"nodes_explored"`
}

// Clone returns a copy that shares no slices or maps with r.
func (r *Result) Clone() *Result {
	out := *r
	if r.Players != nil {
		out.Players = append([]models.Player(nil), r.Players...)
	}
	if r.RoleCounts != nil {
		out.RoleCounts = make(map[models.Role]int, len(r.RoleCounts))
		for role, n := range r.RoleCounts {
			out.RoleCounts[role] = n
		}
	}
	return &out
}

// ValidationError reports caller-supplied input outside the accepted domain.
// It is raised before any solve attempt.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InfeasibleError means the request is well formed but no team satisfies the
// constraints. Shortfall is set when the budget is the binding reason.
type InfeasibleError struct {
	Message   string
	Shortfall float64
}

func (e *InfeasibleError) Error() string {
	return e.Message
}

// OptimizerError wraps an unexpected failure of the solving backend.
type OptimizerError struct {
	Status solver.Status
	Err    error
}

func (e *OptimizerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("optimizer failed (status %s): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("No optimal solution found. Status: %s", e.Status)
}

func (e *OptimizerError) Unwrap() error {
	return e.Err
}

func infeasible(format string, args ...interface{}) *InfeasibleError {
	return &InfeasibleError{Message: fmt.Sprintf(format, args...)}
}
