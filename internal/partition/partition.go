// Package partition computes the row-block decomposition of a grid across a
// fixed group of workers. See doc.go for complete package documentation.
package partition

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned when the grid has no interior rows.
	ErrInvalidSize = errors.New("partition: grid size must be greater than 2")

	// ErrInvalidWorkers is returned for a non-positive worker count or an
	// out-of-range worker index.
	ErrInvalidWorkers = errors.New("partition: invalid worker count or index")

	// ErrTooManyWorkers is returned when there are more workers than rows.
	ErrTooManyWorkers = errors.New("partition: grid size must not be less than the number of workers")
)

// Block describes the contiguous run of grid rows assigned to one worker.
//
// Consecutive blocks share exactly one row: the last row of block i is the
// first row of block i+1, so
//
//	Offset_0 = 0
//	Offset_i = Offset_{i-1} + Rows_{i-1} - 1
//
// Blocks are plain values. They are recomputed wherever they are needed and
// never transmitted between workers.
type Block struct {
	// Index is the worker index in [0, workers).
	Index int

	// Rows is the number of grid rows in the block, including the row shared
	// with each neighbouring block.
	Rows int

	// Offset is the global index of the block's first row.
	Offset int
}

// Last reports whether b is the final block of a p-worker table.
func (b Block) Last(p int) bool {
	return b.Index == p-1
}

// Extent returns the number of rows in the worker's local stripe buffer.
//
// Every worker except the last carries one trailing ghost row that mirrors
// the next worker's first interior row. The row shared with the next block is
// therefore interior to this worker and a ghost row for the next one.
func (b Block) Extent(p int) int {
	if b.Last(p) {
		return b.Rows
	}
	return b.Rows + 1
}

// End returns the global index one past the block's last row.
func (b Block) End() int {
	return b.Offset + b.Rows
}

// walk runs the greedy division of the remaining rows among the remaining
// workers, left to right, and calls fn for every block until fn returns false.
// Table and Layout both go through walk so scatter and gather can never
// disagree on the layout.
func walk(n, p int, fn func(Block) bool) error {
	if n <= 2 {
		return ErrInvalidSize
	}
	if p <= 0 {
		return ErrInvalidWorkers
	}
	if n < p {
		return ErrTooManyWorkers
	}

	remaining := n
	b := Block{Index: 0, Rows: (n-2)/p + 2, Offset: 0}
	for {
		if !fn(b) || b.Index == p-1 {
			return nil
		}
		remaining = remaining - b.Rows + 1
		next := b.Index + 1
		b = Block{
			Index:  next,
			Rows:   (remaining-2)/(p-next) + 2,
			Offset: b.Offset + b.Rows - 1,
		}
	}
}

// Table returns the full partition table for an n-row grid split across p
// workers.
//
// Parameters:
//   - n: total grid rows (n > 2)
//   - p: worker count (0 < p <= n)
//
// Returns:
//   - one Block per worker, ordered by index
//   - ErrInvalidSize, ErrInvalidWorkers or ErrTooManyWorkers
//
// Example:
//
//	table, _ := partition.Table(10, 3)
//	// [{0 4 0} {1 4 3} {2 4 6}]
func Table(n, p int) ([]Block, error) {
	table := make([]Block, 0, max(p, 0))
	err := walk(n, p, func(b Block) bool {
		table = append(table, b)
		return true
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// Layout returns the block of worker i. It is equivalent to Table(n, p)[i]
// without materializing the table.
func Layout(n, p, i int) (Block, error) {
	if i < 0 || i >= p {
		return Block{}, ErrInvalidWorkers
	}
	var out Block
	err := walk(n, p, func(b Block) bool {
		out = b
		return b.Index < i
	})
	return out, err
}

// ScatterCounts returns, per worker, the element count and element
// displacement of its local stripe inside the flattened n×n grid.
func ScatterCounts(table []Block, n int) (counts, displs []int) {
	p := len(table)
	counts = make([]int, p)
	displs = make([]int, p)
	for i, b := range table {
		counts[i] = b.Extent(p) * n
		displs[i] = b.Offset * n
	}
	return counts, displs
}

// OwnedRows returns the local row range [lo, hi) that worker b contributes to
// the assembled grid. Owned ranges of all workers tile [0, n) exactly.
func (b Block) OwnedRows() (lo, hi int) {
	if b.Index == 0 {
		return 0, b.Rows
	}
	return 1, b.Rows
}

// GatherCounts returns, per worker, the element count and element
// displacement of its owned rows inside the flattened n×n grid.
func GatherCounts(table []Block, n int) (counts, displs []int) {
	p := len(table)
	counts = make([]int, p)
	displs = make([]int, p)
	for i, b := range table {
		lo, hi := b.OwnedRows()
		counts[i] = (hi - lo) * n
		displs[i] = (b.Offset + lo) * n
	}
	return counts, displs
}

// Validate checks that table is a well-formed decomposition of n rows: the
// first block starts at row 0, each block starts on the previous block's last
// row, and the last block ends at row n-1.
func Validate(table []Block, n int) error {
	if len(table) == 0 {
		return ErrInvalidWorkers
	}
	if table[0].Offset != 0 {
		return fmt.Errorf("partition: first block starts at row %d", table[0].Offset)
	}
	for i, b := range table {
		if b.Index != i {
			return fmt.Errorf("partition: block %d has index %d", i, b.Index)
		}
		if b.Rows < 1 {
			return fmt.Errorf("partition: block %d has %d rows", i, b.Rows)
		}
		if i > 0 && b.Offset != table[i-1].End()-1 {
			return fmt.Errorf("partition: block %d starts at row %d, want %d", i, b.Offset, table[i-1].End()-1)
		}
	}
	if end := table[len(table)-1].End(); end != n {
		return fmt.Errorf("partition: table covers %d rows, want %d", end, n)
	}
	return nil
}
