package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Options tunes the branch-and-bound search.
type Options struct {
	// MaxNodes caps the number of search nodes. Zero uses the default.
	MaxNodes int
	// IntegralityTol is how far from 0 or 1 an LP value may be and still count
	// as integral.
	IntegralityTol float64
	// FeasibilityTol is the slack allowed when checking constraints.
	FeasibilityTol float64
	// LPTol is passed to the simplex routine.
	LPTol float64
}

func DefaultOptions() Options {
	return Options{
		MaxNodes:       200000,
		IntegralityTol: 1e-6,
		FeasibilityTol: 1e-7,
		LPTol:          1e-10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxNodes <= 0 {
		o.MaxNodes = d.MaxNodes
	}
	if o.IntegralityTol <= 0 {
		o.IntegralityTol = d.IntegralityTol
	}
	if o.FeasibilityTol <= 0 {
		o.FeasibilityTol = d.FeasibilityTol
	}
	if o.LPTol <= 0 {
		o.LPTol = d.LPTol
	}
	return o
}

// BranchAndBound is an exact 0/1 solver. Each node solves the LP relaxation
// with gonum's simplex to obtain a bound; nodes whose bound cannot beat the
// incumbent are pruned. The search is depth-first and always tries the
// "select" branch before the "skip" branch, so among equally good
// assignments the first one found is kept.
type BranchAndBound struct {
	opts   Options
	logger *logrus.Entry
}

func NewBranchAndBound(opts Options, logger *logrus.Entry) *BranchAndBound {
	if logger == nil {
		logger = logrus.WithField("component", "branch_and_bound")
	}
	return &BranchAndBound{opts: opts.withDefaults(), logger: logger}
}

const (
	free int8 = -1
	off  int8 = 0
	on   int8 = 1
)

type search struct {
	p       *Problem
	opts    Options
	sign    float64
	nodes   int
	best    []float64
	bestObj float64
	lpFails int
}

// Solve finds a provably optimal assignment or reports infeasibility.
func (bb *BranchAndBound) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{Status: StatusError}, fmt.Errorf("invalid problem: %w", err)
	}

	start := time.Now()
	s := &search{
		p:       p,
		opts:    bb.opts,
		sign:    1,
		bestObj: math.Inf(1),
	}
	if p.Maximize {
		s.sign = -1
	}

	fixed := make([]int8, p.NumVariables())
	for i := range fixed {
		fixed[i] = free
	}

	err := s.explore(ctx, fixed)

	log := bb.logger.WithFields(logrus.Fields{
		"problem":    p.Name,
		"variables":  p.NumVariables(),
		"nodes":      s.nodes,
		"lp_fails":   s.lpFails,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	if err != nil {
		log.WithError(err).Warn("Branch and bound search aborted")
		return Solution{Status: StatusError, Nodes: s.nodes}, fmt.Errorf("branch and bound aborted after %d nodes: %w", s.nodes, err)
	}

	if s.best == nil {
		log.Debug("Branch and bound found no feasible assignment")
		return Solution{Status: StatusInfeasible, Nodes: s.nodes}, nil
	}

	obj := p.Evaluate(s.best)
	log.WithField("objective", obj).Debug("Branch and bound proved optimality")
	return Solution{
		Status:    StatusOptimal,
		Values:    s.best,
		Objective: obj,
		Nodes:     s.nodes,
	}, nil
}

func (s *search) explore(ctx context.Context, fixed []int8) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.nodes++
	if s.nodes > s.opts.MaxNodes {
		return ErrNodeLimit
	}

	r := s.relax(fixed)
	if r.infeasible {
		return nil
	}
	if len(r.free) == 0 {
		s.consider(assemble(fixed, nil, nil))
		return nil
	}

	branch := -1
	optF, x, err := lp.Simplex(r.c, r.A, r.b, s.opts.LPTol, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil
	case err != nil:
		// No usable bound at this node; branch blindly so the search stays exact.
		s.lpFails++
		branch = r.free[0]
	default:
		if r.fixedObj+optF >= s.bestObj-s.opts.FeasibilityTol {
			return nil
		}
		branch = s.mostFractional(r.free, x)
		if branch < 0 {
			cand := assemble(fixed, r.free, x)
			if s.p.Satisfies(cand, s.opts.FeasibilityTol) {
				s.consider(cand)
				return nil
			}
			branch = r.free[0]
		}
	}

	for _, v := range [...]int8{on, off} {
		fixed[branch] = v
		if err := s.explore(ctx, fixed); err != nil {
			fixed[branch] = free
			return err
		}
	}
	fixed[branch] = free
	return nil
}

// consider replaces the incumbent when x is strictly better.
func (s *search) consider(x []float64) {
	obj := s.sign * s.p.Evaluate(x)
	if obj < s.bestObj-s.opts.FeasibilityTol {
		s.bestObj = obj
		s.best = x
	}
}

// mostFractional picks the free variable whose LP value is closest to 0.5,
// preferring the lowest index on ties. It returns -1 when all are integral.
func (s *search) mostFractional(freeIdx []int, x []float64) int {
	branch := -1
	bestDist := s.opts.IntegralityTol
	for k, i := range freeIdx {
		v := x[k]
		dist := math.Min(math.Abs(v), math.Abs(1-v))
		if dist > bestDist+1e-12 {
			bestDist = dist
			branch = i
		}
	}
	return branch
}

// assemble builds a full 0/1 assignment from fixed values and rounded LP
// values for the free variables.
func assemble(fixed []int8, freeIdx []int, x []float64) []float64 {
	out := make([]float64, len(fixed))
	for i, f := range fixed {
		if f == on {
			out[i] = 1
		}
	}
	for k, i := range freeIdx {
		out[i] = math.Round(x[k])
	}
	return out
}

type relaxation struct {
	free       []int
	c          []float64
	A          *mat.Dense
	b          []float64
	fixedObj   float64
	infeasible bool
}

// relax builds the standard-form LP (minimize c'x, Ax = b, x >= 0) over the
// free variables. Columns are laid out as free variables, then one upper
// bound slack per free variable, then one slack per inequality row.
func (s *search) relax(fixed []int8) relaxation {
	var r relaxation
	for i, f := range fixed {
		switch f {
		case free:
			r.free = append(r.free, i)
		case on:
			r.fixedObj += s.sign * s.p.Objective[i]
		}
	}
	nf := len(r.free)

	type row struct {
		coeffs []float64
		rhs    float64
		slack  float64
	}
	var ineq []row
	var eqRows [][]float64
	var eqRHS []float64

	for _, c := range s.p.Constraints {
		rhs := c.RHS
		coeffs := make([]float64, nf)
		for i, f := range fixed {
			if f == on {
				rhs -= coeff(c, i)
			}
		}
		for k, i := range r.free {
			coeffs[k] = coeff(c, i)
		}

		if nf == 0 || floats.Norm(coeffs, math.Inf(1)) <= s.opts.FeasibilityTol {
			if !holds(0, c.Sense, rhs, s.opts.FeasibilityTol) {
				r.infeasible = true
				return r
			}
			continue
		}

		switch c.Sense {
		case LessEqual:
			ineq = append(ineq, row{coeffs: coeffs, rhs: rhs, slack: 1})
		case GreaterEqual:
			ineq = append(ineq, row{coeffs: coeffs, rhs: rhs, slack: -1})
		default:
			eqRows = append(eqRows, coeffs)
			eqRHS = append(eqRHS, rhs)
		}
	}

	if nf == 0 {
		return r
	}

	keep, ok := independentRows(eqRows, eqRHS, s.opts.FeasibilityTol)
	if !ok {
		r.infeasible = true
		return r
	}

	ni := len(ineq)
	rows := nf + ni + len(keep)
	cols := 2*nf + ni

	r.A = mat.NewDense(rows, cols, nil)
	r.b = make([]float64, rows)
	r.c = make([]float64, cols)
	for k, i := range r.free {
		r.c[k] = s.sign * s.p.Objective[i]
	}

	for k := 0; k < nf; k++ {
		r.A.Set(k, k, 1)
		r.A.Set(k, nf+k, 1)
		r.b[k] = 1
	}
	for j, in := range ineq {
		at := nf + j
		for k, v := range in.coeffs {
			r.A.Set(at, k, v)
		}
		r.A.Set(at, 2*nf+j, in.slack)
		r.b[at] = in.rhs
	}
	for j, e := range keep {
		at := nf + ni + j
		for k, v := range eqRows[e] {
			r.A.Set(at, k, v)
		}
		r.b[at] = eqRHS[e]
	}
	return r
}
