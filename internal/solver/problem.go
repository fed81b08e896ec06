package solver

import (
	"fmt"
	"math"
)

// Sense is the relation between a constraint's left-hand side and its RHS.
type Sense int

const (
	LessEqual Sense = iota
	Equal
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case Equal:
		return "="
	case GreaterEqual:
		return ">="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// Constraint is a linear constraint over every variable of a Problem.
// Coeffs has one entry per variable; missing entries are zero.
type Constraint struct {
	Name   string
	Coeffs []float64
	Sense  Sense
	RHS    float64
}

// Problem is a 0/1 integer program: every variable is binary.
type Problem struct {
	Name        string
	Variables   []string
	Objective   []float64
	Maximize    bool
	Constraints []Constraint
}

func NewProblem(name string, maximize bool) *Problem {
	return &Problem{Name: name, Maximize: maximize}
}

// AddVariable registers a binary variable with its objective coefficient and
// returns its index.
func (p *Problem) AddVariable(name string, objective float64) int {
	p.Variables = append(p.Variables, name)
	p.Objective = append(p.Objective, objective)
	return len(p.Variables) - 1
}

// AddConstraint appends c. Coeffs shorter than the variable count are padded
// with zeros at solve time.
func (p *Problem) AddConstraint(c Constraint) {
	p.Constraints = append(p.Constraints, c)
}

// NumVariables returns the number of decision variables.
func (p *Problem) NumVariables() int {
	return len(p.Variables)
}

// Validate checks the problem shape.
func (p *Problem) Validate() error {
	n := len(p.Variables)
	if len(p.Objective) != n {
		return fmt.Errorf("objective has %d coefficients for %d variables", len(p.Objective), n)
	}
	for i, v := range p.Objective {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("objective coefficient %d (%s) is not finite", i, p.Variables[i])
		}
	}
	for _, c := range p.Constraints {
		if len(c.Coeffs) > n {
			return fmt.Errorf("constraint %s has %d coefficients for %d variables", c.Name, len(c.Coeffs), n)
		}
		if c.Sense < LessEqual || c.Sense > GreaterEqual {
			return fmt.Errorf("constraint %s has unknown sense %d", c.Name, int(c.Sense))
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("constraint %s has a non-finite right-hand side", c.Name)
		}
		for _, v := range c.Coeffs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("constraint %s has a non-finite coefficient", c.Name)
			}
		}
	}
	return nil
}

// Evaluate returns the objective value of assignment x.
func (p *Problem) Evaluate(x []float64) float64 {
	total := 0.0
	for i, c := range p.Objective {
		total += c * x[i]
	}
	return total
}

// Satisfies reports whether assignment x meets every constraint within tol.
func (p *Problem) Satisfies(x []float64, tol float64) bool {
	for _, c := range p.Constraints {
		lhs := 0.0
		for i, a := range c.Coeffs {
			lhs += a * x[i]
		}
		if !holds(lhs, c.Sense, c.RHS, tol) {
			return false
		}
	}
	return true
}

func holds(lhs float64, sense Sense, rhs, tol float64) bool {
	switch sense {
	case LessEqual:
		return lhs <= rhs+tol
	case GreaterEqual:
		return lhs >= rhs-tol
	default:
		return math.Abs(lhs-rhs) <= tol
	}
}

func coeff(c Constraint, i int) float64 {
	if i < len(c.Coeffs) {
		return c.Coeffs[i]
	}
	return 0
}
