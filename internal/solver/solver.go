// Package solver defines the narrow interface the team optimizer uses to solve
// 0/1 integer programs, an exact dynamic-programming backend for
// cardinality-constrained knapsacks, and a general branch-and-bound backend
// built on gonum's simplex implementation.
package solver

import (
	"context"
	"errors"
	"fmt"
)

// Status is the outcome reported by a Solver.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "Optimal"
	case StatusInfeasible:
		return "Infeasible"
	case StatusUnbounded:
		return "Unbounded"
	case StatusError:
		return "Error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ErrNodeLimit is returned when the search exhausts its node budget before
// proving optimality.
var ErrNodeLimit = errors.New("solver: node limit reached")

// Solution is a solver's answer. Values holds one 0/1 entry per variable and
// is only meaningful when Status is StatusOptimal.
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
	Nodes     int
}

// Selected returns the indices of variables set to one.
func (s Solution) Selected() []int {
	idx := make([]int, 0)
	for i, v := range s.Values {
		if v > 0.5 {
			idx = append(idx, i)
		}
	}
	return idx
}

// Solver solves a 0/1 integer program.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, p *Problem) (Solution, error)

func (f SolverFunc) Solve(ctx context.Context, p *Problem) (Solution, error) {
	return f(ctx, p)
}
