package solver

import (
	"math"

	"github.com/dreamware/relax/internal/grid"
)

// SolveSerial relaxes g in place on a single worker until its deviation is at
// most tol and returns the number of sweeps. It applies the same kernel, in
// the same order, as the distributed solver.
func SolveSerial(g *grid.Grid, tol float64) int {
	iterations := 0
	for {
		d := grid.Sweep(g.Cells, g.N, g.N)
		iterations++
		if d <= tol {
			return iterations
		}
	}
}

// AgreementBound estimates how far a Gauss–Seidel solution stopped at
// deviation eps may lie from the converged solution on an n×n grid:
// eps / (1 - rho), with rho = cos²(π/(n-1)) the sweep's contraction factor.
// Two runs that sweep in different orders agree to within this bound.
func AgreementBound(n int, eps float64) float64 {
	c := math.Cos(math.Pi / float64(n-1))
	return eps / (1 - c*c)
}

// Report is the outcome of cross-checking a distributed result against the
// serial reference.
type Report struct {
	Mismatches       []grid.Mismatch // Every cell off by at least Tolerance
	SerialIterations int             // Sweeps the serial reference needed
	MaxDiff          float64         // Largest cell difference
	Tolerance        float64         // Tolerance applied per cell
}

// Identical reports whether no cell differs by Tolerance or more.
func (r Report) Identical() bool {
	return len(r.Mismatches) == 0
}

// Verify relaxes a copy of initial serially with tolerance eps and compares
// every cell of result against it with the given cell tolerance.
func Verify(initial, result *grid.Grid, eps, tol float64) (Report, error) {
	ref := initial.Clone()
	iterations := SolveSerial(ref, eps)

	mismatches, err := grid.Compare(ref, result, tol)
	if err != nil {
		return Report{}, err
	}
	maxDiff, err := grid.MaxDiff(ref, result)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Mismatches:       mismatches,
		SerialIterations: iterations,
		MaxDiff:          maxDiff,
		Tolerance:        tol,
	}, nil
}
