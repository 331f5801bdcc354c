// Package grid holds the N×N relaxation domain owned by the root worker and
// the in-place Gauss–Seidel sweep shared by the distributed and serial solvers.
package grid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"

	"golang.org/x/exp/slices"
)

// DefaultBoundary is the fixed value of every boundary cell.
const DefaultBoundary float64 = 100

// ErrSizeMismatch is returned when two grids of different sizes are compared.
var ErrSizeMismatch = errors.New("grid: size mismatch")

// Grid is a square, row-major matrix of float64 cells.
// Row 0, row N-1, column 0 and column N-1 are boundary cells.
type Grid struct {
	Cells []float64
	N     int
}

// New returns an N×N grid of zeros.
func New(n int) *Grid {
	return &Grid{N: n, Cells: make([]float64, n*n)}
}

// NewDirichlet returns a grid whose boundary cells are set to boundary and
// whose interior cells are set to interior.
func NewDirichlet(n int, boundary, interior float64) *Grid {
	g := New(n)
	g.Fill(func(i, j int) float64 {
		if g.IsBoundary(i, j) {
			return boundary
		}
		return interior
	})
	return g
}

// NewRandom returns a grid with the given boundary value and interior cells
// drawn uniformly from [0, 1000).
func NewRandom(n int, boundary float64, rng *rand.Rand) *Grid {
	g := New(n)
	g.Fill(func(i, j int) float64 {
		if g.IsBoundary(i, j) {
			return boundary
		}
		return rng.Float64() * 1000
	})
	return g
}

// Fill sets every cell in row-major order from fn.
func (g *Grid) Fill(fn func(i, j int) float64) {
	for i := 0; i < g.N; i++ {
		for j := 0; j < g.N; j++ {
			g.Cells[i*g.N+j] = fn(i, j)
		}
	}
}

// IsBoundary reports whether (i, j) lies on the grid's fixed boundary.
func (g *Grid) IsBoundary(i, j int) bool {
	return i == 0 || j == 0 || i == g.N-1 || j == g.N-1
}

// At returns the value of cell (i, j).
func (g *Grid) At(i, j int) float64 {
	return g.Cells[i*g.N+j]
}

// Row returns row i as a slice aliasing the grid's storage.
func (g *Grid) Row(i int) []float64 {
	return g.Cells[i*g.N : (i+1)*g.N]
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	return &Grid{N: g.N, Cells: slices.Clone(g.Cells)}
}

// Boundary returns a copy of the boundary cells in a fixed order: top row,
// bottom row, then the left and right columns of the interior rows.
func (g *Grid) Boundary() []float64 {
	n := g.N
	out := make([]float64, 0, 4*n)
	out = append(out, g.Row(0)...)
	out = append(out, g.Row(n-1)...)
	for i := 1; i < n-1; i++ {
		out = append(out, g.At(i, 0), g.At(i, n-1))
	}
	return out
}

// Fprint writes the grid as fixed-width rows, one grid row per line.
func (g *Grid) Fprint(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < g.N; i++ {
		for _, v := range g.Row(i) {
			if _, err := fmt.Fprintf(bw, "%7.4f ", v); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Sweep applies one in-place Gauss–Seidel pass to a row-major block of
// rows×cols cells and returns the largest absolute change.
//
// Rows 1..rows-2 and columns 1..cols-2 are visited in increasing order. Each
// cell becomes the mean of its four neighbours, where the left and upper
// neighbours have already been updated in this pass. The first and last rows
// and columns are read but never written.
func Sweep(cells []float64, rows, cols int) float64 {
	var dmax float64
	for i := 1; i < rows-1; i++ {
		up := cells[(i-1)*cols : i*cols]
		row := cells[i*cols : (i+1)*cols]
		down := cells[(i+1)*cols : (i+2)*cols]
		for j := 1; j < cols-1; j++ {
			old := row[j]
			row[j] = 0.25 * (row[j+1] + row[j-1] + down[j] + up[j])
			if dm := math.Abs(row[j] - old); dmax < dm {
				dmax = dm
			}
		}
	}
	return dmax
}

// Mismatch is a cell where two grids disagree by at least the tolerance.
type Mismatch struct {
	Row, Col int
	Want     float64
	Got      float64
}

// Diff returns |Got - Want|.
func (m Mismatch) Diff() float64 {
	return math.Abs(m.Got - m.Want)
}

// Compare scans every cell of got against want and returns each cell where
// |got - want| >= tol, in row-major order.
func Compare(want, got *Grid, tol float64) ([]Mismatch, error) {
	if want.N != got.N {
		return nil, fmt.Errorf("%w: %d vs %d", ErrSizeMismatch, want.N, got.N)
	}
	var out []Mismatch
	for k, w := range want.Cells {
		if math.Abs(got.Cells[k]-w) >= tol {
			out = append(out, Mismatch{Row: k / want.N, Col: k % want.N, Want: w, Got: got.Cells[k]})
		}
	}
	return out, nil
}

// MaxDiff returns the largest absolute cell difference between a and b.
func MaxDiff(a, b *Grid) (float64, error) {
	if a.N != b.N {
		return 0, fmt.Errorf("%w: %d vs %d", ErrSizeMismatch, a.N, b.N)
	}
	var m float64
	for k, v := range a.Cells {
		m = max(m, math.Abs(b.Cells[k]-v))
	}
	return m, nil
}
