package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned by a Knapsack without a fallback when the problem
// does not have a shape it can tabulate.
var ErrUnsupported = errors.New("solver: problem shape not supported")

const (
	// maxTableCells caps items x count layers x weight columns.
	maxTableCells = 1 << 27

	// maxDecimals is the most fractional digits a weight may carry.
	maxDecimals = 4

	// maxWeight keeps scaled weights well inside int range.
	maxWeight = 1 << 40

	shapeTol = 1e-9
	valueTol = 1e-9

	// anyCount marks a group with no count row; bounded targets never reach it.
	anyCount = math.MinInt32
)

// Knapsack solves cardinality-constrained knapsacks exactly with dynamic
// programming over (selected count, total weight). It accepts problems made
// of at most one <= row with nonnegative coefficients, equality rows with
// 0/1 coefficients where at most one row encloses the others and the others
// are disjoint, and single-variable equality rows that fix a variable.
// Anything else, or a table larger than maxTableCells, is handed to the
// fallback.
//
// Weights are scaled to integers by the smallest power of ten that makes
// them whole. Among equally good selections the lightest wins, then the one
// using lower variable indices.
type Knapsack struct {
	fallback Solver
	logger   *logrus.Entry
}

func NewKnapsack(fallback Solver, logger *logrus.Entry) *Knapsack {
	if logger == nil {
		logger = logrus.WithField("component", "knapsack")
	}
	return &Knapsack{fallback: fallback, logger: logger}
}

// NewDefault is dynamic programming where the problem allows it and branch
// and bound everywhere else.
func NewDefault(opts Options, logger *logrus.Entry) Solver {
	return NewKnapsack(NewBranchAndBound(opts, logger), logger)
}

func (k *Knapsack) Solve(ctx context.Context, p *Problem) (Solution, error) {
	if err := p.Validate(); err != nil {
		return Solution{Status: StatusError}, fmt.Errorf("invalid problem %s: %w", p.Name, err)
	}

	t, ok := tabulate(p)
	if !ok {
		if k.fallback == nil {
			return Solution{Status: StatusError}, ErrUnsupported
		}
		return k.fallback.Solve(ctx, p)
	}

	start := time.Now()
	x, found, err := t.run(ctx)
	log := k.logger.WithFields(logrus.Fields{
		"problem":  p.Name,
		"vars":     p.NumVariables(),
		"capacity": t.capacity,
		"groups":   len(t.groups),
		"elapsed":  time.Since(start),
	})
	if err != nil {
		log.WithError(err).Warn("Knapsack table aborted")
		return Solution{Status: StatusError}, fmt.Errorf("knapsack table aborted: %w", err)
	}
	if !found {
		log.Debug("Knapsack table found no feasible selection")
		return Solution{Status: StatusInfeasible}, nil
	}
	if !p.Satisfies(x, 1e-6) {
		log.Warn("Knapsack selection breaks a constraint after rescaling")
		if k.fallback != nil {
			return k.fallback.Solve(ctx, p)
		}
		return Solution{Status: StatusError}, ErrUnsupported
	}

	log.Debug("Knapsack table solved")
	return Solution{Status: StatusOptimal, Values: x, Objective: p.Evaluate(x)}, nil
}

type group struct {
	items  []int
	target int
}

func (g group) layers() int {
	if g.target == anyCount {
		return 1
	}
	return g.target + 1
}

// table is a problem rewritten as integer weights, values in the maximizing
// sense, and groups of variables with an exact selection count each.
type table struct {
	n          int
	weights    []int
	values     []float64
	fixed      []int8
	capacity   int
	groups     []group
	infeasible bool
}

// tabulate reports false when p is not a shape the table can represent.
func tabulate(p *Problem) (*table, bool) {
	n := p.NumVariables()
	t := &table{
		n:       n,
		weights: make([]int, n),
		values:  make([]float64, n),
		fixed:   make([]int8, n),
	}
	for i, c := range p.Objective {
		t.values[i] = c
		if !p.Maximize {
			t.values[i] = -c
		}
		t.fixed[i] = free
	}

	var (
		budget *Constraint
		counts []Constraint
	)
	for ci := range p.Constraints {
		c := p.Constraints[ci]
		nz := support(c, n)
		switch {
		case len(nz) == 0:
			if !holds(0, c.Sense, c.RHS, shapeTol) {
				t.infeasible = true
			}
		case len(nz) == 1 && c.Sense == Equal:
			i := nz[0]
			v := c.RHS / coeff(c, i)
			want := off
			switch {
			case math.Abs(v-1) <= shapeTol:
				want = on
			case math.Abs(v) <= shapeTol:
			default:
				t.infeasible = true
				continue
			}
			if t.fixed[i] != free && t.fixed[i] != want {
				t.infeasible = true
			}
			t.fixed[i] = want
		case c.Sense == LessEqual && nonnegative(c, nz):
			if budget != nil {
				return nil, false
			}
			budget = &p.Constraints[ci]
		case c.Sense == Equal && unitRow(c, nz) && wholeCount(c.RHS):
			counts = append(counts, c)
		default:
			return nil, false
		}
	}

	if !t.scaleWeights(budget) {
		return nil, false
	}
	if !t.buildGroups(counts) {
		return nil, false
	}

	width := t.capacity + 1
	cells := 0
	for _, g := range t.groups {
		cells += len(g.items) * g.layers() * width
		if cells > maxTableCells {
			return nil, false
		}
	}
	return t, true
}

// scaleWeights turns the <= row into integer weights and a capacity net of
// fixed selections, divided through by the weights' common factor.
func (t *table) scaleWeights(budget *Constraint) bool {
	if budget == nil {
		return true
	}
	scale, ok := integralScale(*budget, t.n)
	if !ok {
		return false
	}

	capacity := math.Floor(budget.RHS*scale + 1e-6)
	total := 0
	for i := 0; i < t.n; i++ {
		w := math.Round(coeff(*budget, i) * scale)
		if w > maxWeight {
			return false
		}
		t.weights[i] = int(w)
		switch t.fixed[i] {
		case on:
			capacity -= w
		case free:
			total += t.weights[i]
		}
	}
	if capacity < 0 {
		t.infeasible = true
		return true
	}
	t.capacity = int(math.Min(capacity, float64(total)))

	g := 0
	for i, w := range t.weights {
		if t.fixed[i] == free && w > 0 {
			g = gcd(g, w)
		}
	}
	if g > 1 {
		for i := range t.weights {
			if t.fixed[i] == free {
				t.weights[i] /= g
			}
		}
		t.capacity /= g
	}
	return true
}

// buildGroups splits the variables by the count rows they belong to. One row
// may enclose all the others; the rest must be disjoint.
func (t *table) buildGroups(counts []Constraint) bool {
	rows := make([][]bool, len(counts))
	for r, c := range counts {
		rows[r] = make([]bool, t.n)
		for i := 0; i < t.n; i++ {
			rows[r][i] = coeff(c, i) != 0
		}
	}

	parent := -1
	for r := range rows {
		if encloses(rows, r) {
			parent = r
			break
		}
	}

	owner := make([]int, t.n)
	for i := range owner {
		owner[i] = -1
	}
	childTotal := 0
	for r := range rows {
		if r == parent {
			continue
		}
		g := group{target: int(math.Round(counts[r].RHS))}
		for i, in := range rows[r] {
			if !in {
				continue
			}
			if owner[i] >= 0 {
				return false
			}
			owner[i] = r
			g.items = append(g.items, i)
		}
		childTotal += g.target
		t.groups = append(t.groups, g)
	}

	rest := group{target: anyCount}
	if parent >= 0 {
		rest.target = int(math.Round(counts[parent].RHS)) - childTotal
		if rest.target < 0 {
			t.infeasible = true
		}
	}
	spare := group{target: anyCount}
	for i := 0; i < t.n; i++ {
		switch {
		case owner[i] >= 0:
		case parent >= 0 && rows[parent][i]:
			rest.items = append(rest.items, i)
		default:
			spare.items = append(spare.items, i)
		}
	}
	if parent >= 0 {
		t.groups = append(t.groups, rest)
	}
	if len(spare.items) > 0 {
		t.groups = append(t.groups, spare)
	}

	for gi := range t.groups {
		g := &t.groups[gi]
		kept := g.items[:0]
		for _, i := range g.items {
			switch t.fixed[i] {
			case on:
				if g.target != anyCount {
					g.target--
				}
			case free:
				kept = append(kept, i)
			}
		}
		g.items = kept
		if g.target != anyCount && (g.target < 0 || g.target > len(g.items)) {
			t.infeasible = true
		}
	}
	return true
}

// run fills the table group by group and walks the recorded picks back from
// the best reachable weight.
func (t *table) run(ctx context.Context) ([]float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if t.infeasible {
		return nil, false, nil
	}

	width := t.capacity + 1
	base := filled(width, math.Inf(-1))
	base[0] = 0

	picks := make([][]bitset, len(t.groups))
	for gi, g := range t.groups {
		layers := g.layers()
		cur := make([][]float64, layers)
		cur[0] = base
		for j := 1; j < layers; j++ {
			cur[j] = filled(width, math.Inf(-1))
		}

		picks[gi] = make([]bitset, len(g.items))
		for k, i := range g.items {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			w, v := t.weights[i], t.values[i]
			bits := newBitset(layers * width)
			for j := layers - 1; j >= 0; j-- {
				from := j - 1
				if g.target == anyCount {
					from = j
				}
				if from < 0 {
					continue
				}
				src, dst := cur[from], cur[j]
				for c := width - 1; c >= w; c-- {
					if cand := src[c-w] + v; cand > dst[c]+valueTol {
						dst[c] = cand
						bits.set(j*width + c)
					}
				}
			}
			picks[gi][k] = bits
		}
		base = cur[layers-1]
	}

	best := -1
	for c, v := range base {
		if math.IsInf(v, -1) {
			continue
		}
		if best < 0 || v > base[best]+valueTol {
			best = c
		}
	}
	if best < 0 {
		return nil, false, nil
	}

	x := make([]float64, t.n)
	for i, f := range t.fixed {
		if f == on {
			x[i] = 1
		}
	}
	c := best
	for gi := len(t.groups) - 1; gi >= 0; gi-- {
		g := t.groups[gi]
		j := g.layers() - 1
		for k := len(g.items) - 1; k >= 0; k-- {
			if !picks[gi][k].has(j*width + c) {
				continue
			}
			i := g.items[k]
			x[i] = 1
			c -= t.weights[i]
			if g.target != anyCount {
				j--
			}
		}
	}
	return x, true, nil
}

// integralScale returns the smallest power of ten that makes every
// coefficient of c a whole number.
func integralScale(c Constraint, n int) (float64, bool) {
	scale := 1.0
	for d := 0; d <= maxDecimals; d++ {
		whole := true
		for i := 0; i < n && whole; i++ {
			w := coeff(c, i) * scale
			whole = math.Abs(w-math.Round(w)) <= 1e-6*math.Max(1, math.Abs(w))
		}
		if whole {
			return scale, true
		}
		scale *= 10
	}
	return 0, false
}

func encloses(rows [][]bool, r int) bool {
	for o := range rows {
		if o == r {
			continue
		}
		for i, in := range rows[o] {
			if in && !rows[r][i] {
				return false
			}
		}
	}
	return true
}

func support(c Constraint, n int) []int {
	var nz []int
	for i := 0; i < n; i++ {
		if coeff(c, i) != 0 {
			nz = append(nz, i)
		}
	}
	return nz
}

func nonnegative(c Constraint, nz []int) bool {
	for _, i := range nz {
		if coeff(c, i) < 0 {
			return false
		}
	}
	return true
}

func unitRow(c Constraint, nz []int) bool {
	for _, i := range nz {
		if math.Abs(coeff(c, i)-1) > shapeTol {
			return false
		}
	}
	return true
}

func wholeCount(v float64) bool {
	return v > -shapeTol && math.Abs(v-math.Round(v)) <= shapeTol
}

func filled(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i>>6] |= 1 << (uint(i) & 63)
}

func (b bitset) has(i int) bool {
	return b[i>>6]&(1<<(uint(i)&63)) != 0
}
