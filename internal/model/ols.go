package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// olsSolve fits y ≈ X·beta by ordinary least squares with a small ridge
// term on the normal equations. The ridge keeps near-collinear designs
// (constant regressors, sparse holiday dummies) solvable instead of
// failing on a singular matrix.
func olsSolve(x *mat.Dense, y []float64, ridge float64) ([]float64, error) {
	n, p := x.Dims()
	if n < p {
		return nil, fmt.Errorf("underdetermined system: %d rows, %d params", n, p)
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 0; i < p; i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridge)
	}

	yv := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yv)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("solve normal equations: %w", err)
	}

	out := make([]float64, p)
	for i := range out {
		out[i] = beta.AtVec(i)
	}
	return out, nil
}

// dot computes the inner product of a design row and coefficients.
func dot(row, beta []float64) float64 {
	var s float64
	for i := range row {
		s += row[i] * beta[i]
	}
	return s
}
