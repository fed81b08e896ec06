package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// teamProblem mirrors the optimizer's formulation: a budget row, a team size
// row, one row per role and one row per locked variable.
func teamProblem(scores, prices []float64, roles []int, roleCounts []int, size int, budget float64, locked []int) *Problem {
	n := len(scores)
	p := NewProblem("team", true)
	for i, s := range scores {
		p.AddVariable(fmt.Sprintf("player_%d", i), s)
	}
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	p.AddConstraint(Constraint{Name: "budget", Coeffs: prices, Sense: LessEqual, RHS: budget})
	p.AddConstraint(Constraint{Name: "team_size", Coeffs: ones, Sense: Equal, RHS: float64(size)})
	for r, count := range roleCounts {
		row := make([]float64, n)
		for i, role := range roles {
			if role == r {
				row[i] = 1
			}
		}
		p.AddConstraint(Constraint{Name: fmt.Sprintf("role_%d", r), Coeffs: row, Sense: Equal, RHS: float64(count)})
	}
	for _, i := range locked {
		row := make([]float64, n)
		row[i] = 1
		p.AddConstraint(Constraint{Name: fmt.Sprintf("locked_%d", i), Coeffs: row, Sense: Equal, RHS: 1})
	}
	return p
}

// correlatedPool prices players between 5 and 20 with two decimals and
// scores them at ten per unit of price plus up to one point of noise.
func correlatedPool(seed int64, n int) (scores, prices []float64) {
	rng := rand.New(rand.NewSource(seed))
	scores = make([]float64, n)
	prices = make([]float64, n)
	for i := 0; i < n; i++ {
		prices[i] = float64(500+rng.Intn(1501)) / 100
		scores[i] = 10*prices[i] + rng.Float64()
	}
	return scores, prices
}

func TestKnapsack_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ks := NewKnapsack(nil, nil)

	for trial := 0; trial < 60; trial++ {
		n := 6 + rng.Intn(7)
		scores := make([]float64, n)
		prices := make([]float64, n)
		roles := make([]int, n)
		for i := 0; i < n; i++ {
			scores[i] = float64(rng.Intn(5000)) / 13
			prices[i] = float64(100+rng.Intn(1900)) / 100
			roles[i] = rng.Intn(3)
		}
		size := 1 + rng.Intn(n/2)

		var roleCounts []int
		if trial%3 != 0 {
			roleCounts = make([]int, 3)
			for k := 0; k < size; k++ {
				roleCounts[rng.Intn(3)]++
			}
		}
		var locked []int
		if trial%4 == 1 {
			locked = append(locked, rng.Intn(n))
		}
		budget := float64(size) * (5 + float64(rng.Intn(1000))/100)

		p := teamProblem(scores, prices, roles, roleCounts, size, budget, locked)
		want := bruteForce(p)
		sol, err := ks.Solve(context.Background(), p)
		require.NoError(t, err, "trial %d", trial)

		if math.IsNaN(want) {
			assert.Equal(t, StatusInfeasible, sol.Status, "trial %d", trial)
			continue
		}
		require.Equal(t, StatusOptimal, sol.Status, "trial %d", trial)
		assert.InDelta(t, want, sol.Objective, 1e-6, "trial %d", trial)
		assert.True(t, p.Satisfies(sol.Values, 1e-9), "trial %d", trial)
	}
}

func TestKnapsack_CorrelatedPoolMatchesBruteForce(t *testing.T) {
	scores, prices := correlatedPool(3, 20)
	ks := NewKnapsack(nil, nil)

	for _, budget := range []float64{70.37, 84.11, 101.5} {
		p := teamProblem(scores, prices, nil, nil, 7, budget, nil)
		sol, err := ks.Solve(context.Background(), p)
		require.NoError(t, err)
		require.Equal(t, StatusOptimal, sol.Status, "budget %v", budget)
		assert.InDelta(t, bruteForce(p), sol.Objective, 1e-6, "budget %v", budget)
	}
}

func TestKnapsack_CorrelatedPoolSolvesQuickly(t *testing.T) {
	for _, n := range []int{30, 50} {
		scores, prices := correlatedPool(int64(n), n)
		for _, budget := range []float64{180.37, 250.11, 301.5} {
			p := teamProblem(scores, prices, nil, nil, 11, budget, nil)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			sol, err := NewDefault(DefaultOptions(), nil).Solve(ctx, p)
			cancel()
			require.NoError(t, err, "n %d budget %v", n, budget)
			require.Equal(t, StatusOptimal, sol.Status)
			require.Len(t, sol.Selected(), 11)
			assert.True(t, p.Satisfies(sol.Values, 1e-9))

			// no single swap improves the team
			cost := 0.0
			for _, i := range sol.Selected() {
				cost += prices[i]
			}
			for _, out := range sol.Selected() {
				for in := range scores {
					if sol.Values[in] > 0.5 {
						continue
					}
					if cost-prices[out]+prices[in] > budget+1e-9 {
						continue
					}
					assert.LessOrEqual(t, scores[in]-scores[out], 1e-9, "swap %d for %d", out, in)
				}
			}
		}
	}
}

func TestKnapsack_RolesAndLocks(t *testing.T) {
	scores := []float64{50, 40, 30, 20, 10, 45}
	prices := []float64{10, 8, 6, 4, 2, 9}
	roles := []int{0, 0, 1, 1, 1, 2}

	p := teamProblem(scores, prices, roles, []int{1, 2, 0}, 3, 20, []int{4})
	sol, err := NewKnapsack(nil, nil).Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, []int{0, 2, 4}, sol.Selected())
	assert.InDelta(t, 90.0, sol.Objective, 1e-9)
}

func TestKnapsack_Infeasible(t *testing.T) {
	ks := NewKnapsack(nil, nil)

	t.Run("locked players exceed the budget", func(t *testing.T) {
		p := teamProblem([]float64{1, 2, 3}, []float64{10, 10, 10}, nil, nil, 2, 15, []int{0, 1})
		sol, err := ks.Solve(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, StatusInfeasible, sol.Status)
	})

	t.Run("role count larger than its group", func(t *testing.T) {
		p := teamProblem([]float64{1, 2, 3}, []float64{1, 1, 1}, []int{0, 1, 1}, []int{2, 0}, 2, 15, nil)
		sol, err := ks.Solve(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, StatusInfeasible, sol.Status)
	})

	t.Run("locked variable outside every role", func(t *testing.T) {
		// roles cover the whole team, so role 2 players cannot be picked
		p := teamProblem([]float64{5, 4, 3}, []float64{1, 1, 1}, []int{0, 1, 2}, []int{1, 1}, 2, 10, []int{2})
		sol, err := ks.Solve(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, StatusInfeasible, sol.Status)
		assert.True(t, math.IsNaN(bruteForce(p)))
	})

	t.Run("variable fixed both ways", func(t *testing.T) {
		p := NewProblem("fixed", true)
		p.AddVariable("a", 1)
		p.AddConstraint(Constraint{Name: "on", Coeffs: []float64{1}, Sense: Equal, RHS: 1})
		p.AddConstraint(Constraint{Name: "off", Coeffs: []float64{2}, Sense: Equal, RHS: 0})
		sol, err := ks.Solve(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, StatusInfeasible, sol.Status)
	})
}

func TestKnapsack_TiesPreferLowerIndices(t *testing.T) {
	p := NewProblem("tie", true)
	for _, name := range []string{"a", "b", "c", "d"} {
		p.AddVariable(name, 10)
	}
	p.AddConstraint(Constraint{Name: "size", Coeffs: []float64{1, 1, 1, 1}, Sense: Equal, RHS: 2})

	for i := 0; i < 3; i++ {
		sol, err := NewKnapsack(nil, nil).Solve(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, sol.Selected())
	}
}

func TestKnapsack_HandsOtherShapesToFallback(t *testing.T) {
	calls := 0
	fallback := SolverFunc(func(ctx context.Context, p *Problem) (Solution, error) {
		calls++
		return Solution{Status: StatusOptimal, Values: []float64{1, 1, 0}}, nil
	})

	p := NewProblem("cover", false)
	p.AddVariable("x", 3)
	p.AddVariable("y", 2)
	p.AddVariable("z", 4)
	p.AddConstraint(Constraint{Name: "pick2", Coeffs: []float64{1, 1, 1}, Sense: GreaterEqual, RHS: 2})

	_, err := NewKnapsack(fallback, nil).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = NewKnapsack(fallback, nil).Solve(context.Background(), knapsack())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "a plain knapsack is tabulated")

	sol, err := NewKnapsack(nil, nil).Solve(context.Background(), p)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, StatusError, sol.Status)

	sol, err = NewDefault(Options{}, nil).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, sol.Selected())
}

func TestKnapsack_PlainKnapsack(t *testing.T) {
	sol, err := NewKnapsack(nil, nil).Solve(context.Background(), knapsack())
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 220.0, sol.Objective, 1e-9)
	assert.Equal(t, []int{1, 2}, sol.Selected())
}

func TestKnapsack_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol, err := NewKnapsack(nil, nil).Solve(ctx, knapsack())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StatusError, sol.Status)
}

func TestIntegralScale(t *testing.T) {
	scale, ok := integralScale(Constraint{Coeffs: []float64{9, 10.5, 12.25}}, 3)
	require.True(t, ok)
	assert.Equal(t, 100.0, scale)

	_, ok = integralScale(Constraint{Coeffs: []float64{1.0 / 3}}, 1)
	assert.False(t, ok)
}
