package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// independentRows runs Gauss-Jordan elimination over the equality rows and
// returns the indices of a linearly independent subset. The simplex routine
// requires full row rank, so dependent rows are dropped. ok is false when a
// dependent row contradicts the others, which makes the system infeasible.
func independentRows(rows [][]float64, rhs []float64, tol float64) (keep []int, ok bool) {
	type pivotRow struct {
		col int
		row []float64
		rhs float64
	}
	var basis []pivotRow

	for i, orig := range rows {
		r := make([]float64, len(orig))
		copy(r, orig)
		b := rhs[i]

		for _, p := range basis {
			if f := r[p.col]; f != 0 {
				floats.AddScaled(r, -f, p.row)
				b -= f * p.rhs
			}
		}

		col, mag := -1, 0.0
		for k, v := range r {
			if a := math.Abs(v); a > mag {
				col, mag = k, a
			}
		}
		if mag <= tol {
			if math.Abs(b) > tol*math.Max(1, math.Abs(rhs[i])) {
				return nil, false
			}
			continue
		}

		inv := 1 / r[col]
		floats.Scale(inv, r)
		b *= inv
		r[col] = 1

		for j := range basis {
			if f := basis[j].row[col]; f != 0 {
				floats.AddScaled(basis[j].row, -f, r)
				basis[j].rhs -= f * b
				basis[j].row[col] = 0
			}
		}
		basis = append(basis, pivotRow{col: col, row: r, rhs: b})
		keep = append(keep, i)
	}
	return keep, true
}
