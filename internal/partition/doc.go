// Package partition provides the deterministic row-block decomposition used by
// relax to spread an N×N grid over P workers.
//
// # Overview
//
// The grid is split into P contiguous row blocks. Neighbouring blocks overlap
// by exactly one row, and the union of all blocks covers rows [0, N). The
// layout is a pure function of (N, P, i): every worker computes it for itself,
// and the root computes the whole table once for the scatter and once more
// for the gather. Nothing about the layout ever travels over the wire.
//
// # Algorithm
//
// Rows are handed out greedily, left to right, dividing the rows that remain
// among the workers that remain:
//
//	Rows_0    = (N-2)/P + 2
//	remaining = remaining - Rows_{i-1} + 1
//	Rows_i    = (remaining-2)/(P-i) + 2
//
// When N-2 is not a multiple of P, earlier workers never receive fewer rows
// than later ones.
//
// Example for N = 10:
//
//	P = 1   [{0 10 0}]
//	P = 3   [{0 4 0} {1 4 3} {2 4 6}]
//	P = 5   [{0 3 0} {1 3 2} {2 3 4} {3 3 6} {4 2 8}]
//
// # Stripes and ownership
//
// A worker's local stripe holds its block plus, for every worker but the last,
// one trailing ghost row (see Block.Extent). Row 0 of a non-first stripe and
// the trailing row of a non-last stripe are ghost rows refreshed by the halo
// exchange. Block.OwnedRows names the rows a worker contributes back to the
// assembled grid; owned ranges tile the grid with no gap and no overlap.
//
// # Constraints
//
// Table accepts any N > 2 and 0 < P <= N. The distributed solver additionally
// requires N > P so that every block has at least two rows.
package partition
