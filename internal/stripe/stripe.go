package stripe

import (
	"errors"

	"github.com/dreamware/relax/internal/grid"
	"github.com/dreamware/relax/internal/partition"
)

// ErrReleased is returned when a released stripe is used.
var ErrReleased = errors.New("stripe: buffer released")

// Stripe is a worker's local row block of the grid, including its ghost rows.
// Each stripe exclusively owns its buffer; nothing outside the owning worker
// reads or writes it.
//
// Layout of the buffer (Extent rows of Cols cells):
//
//	row 0          top ghost row (grid boundary for worker 0)
//	rows 1..E-2    interior rows relaxed by this worker
//	row E-1        bottom ghost row (grid boundary for the last worker)
type Stripe struct {
	data      []float64       // Extent×Cols row-major cells
	Block     partition.Block // The partition block this stripe holds
	Cols      int             // Grid width
	Extent    int             // Rows in the buffer
	sweeps    uint64          // Number of Relax calls
	deviation float64         // Local deviation of the most recent Relax
}

// New allocates a stripe for block b of a workers-wide table over a grid
// with cols columns.
func New(b partition.Block, workers, cols int) *Stripe {
	extent := b.Extent(workers)
	return &Stripe{
		Block:  b,
		Cols:   cols,
		Extent: extent,
		data:   make([]float64, extent*cols),
	}
}

// Data returns the stripe's backing buffer.
func (s *Stripe) Data() []float64 {
	return s.data
}

// Row returns local row i as a slice aliasing the stripe buffer.
func (s *Stripe) Row(i int) []float64 {
	return s.data[i*s.Cols : (i+1)*s.Cols]
}

// Relax applies one in-place Gauss–Seidel sweep to the interior rows and
// returns the largest absolute change. Ghost rows and the boundary columns are
// read but never written.
func (s *Stripe) Relax() (float64, error) {
	if s.data == nil {
		return 0, ErrReleased
	}
	d := grid.Sweep(s.data, s.Extent, s.Cols)
	s.sweeps++
	s.deviation = d
	return d, nil
}

// Owned returns the contiguous part of the buffer this worker contributes to
// the assembled grid.
func (s *Stripe) Owned() []float64 {
	lo, hi := s.Block.OwnedRows()
	return s.data[lo*s.Cols : hi*s.Cols]
}

// Sweeps returns the number of completed Relax calls.
func (s *Stripe) Sweeps() uint64 {
	return s.sweeps
}

// LastDeviation returns the deviation reported by the most recent Relax.
func (s *Stripe) LastDeviation() float64 {
	return s.deviation
}

// Release drops the stripe buffer. It is safe to call more than once.
func (s *Stripe) Release() {
	s.data = nil
}
