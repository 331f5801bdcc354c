// Package stripe implements the worker-local row block of the relaxation grid
// and the local Gauss–Seidel sweep over it.
//
// A Stripe is allocated from a partition.Block, filled by the scatter, kept
// current at its edges by the halo exchange, and relaxed in place once per
// iteration. The stripe owns its buffer; callers defer Release so the buffer
// is dropped on every exit path, including an aborted group.
//
// Relax never touches row 0, the last row, column 0 or the last column. For
// worker 0 the first row is the grid's top boundary and for the last worker
// the last row is the grid's bottom boundary; every other edge row is a ghost
// row owned by a neighbour.
package stripe
