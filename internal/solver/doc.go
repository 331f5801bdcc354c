// Package solver implements the distributed Gauss–Seidel relaxation of a
// Dirichlet grid and the serial reference used to validate it.
//
// # Pipeline
//
// Every worker of a cluster group runs Solve:
//
//	root: validate {N, ε} ──bcast──► all
//	all:  block := partition.Layout(N, P, rank)
//	root: grid ──Distribute (Scatterv)──► stripes
//	loop:
//	    ExchangeHalo   forward then backward Sendrecv
//	    Stripe.Relax   in-place sweep, local deviation
//	    AllreduceMax   global deviation, same on every worker
//	until global <= ε
//	stripes ──Collect (Gatherv)──► root grid
//
// The iteration counter starts at 1 and grows once per loop body. The stop
// decision is taken from the reduced value only, so all workers leave the
// loop on the same iteration and their message sequences stay matched.
//
// # Ordering
//
// The sweep is true Gauss–Seidel: inside a stripe each cell reads the
// already-updated left and upper neighbours. Across stripes, the ghost rows
// carry the neighbour's values from the end of the previous iteration. With a
// single worker the run is therefore identical, bit for bit, to SolveSerial;
// with more workers the solution agrees with the serial one to within
// AgreementBound while the iteration count may differ.
//
// # Validation
//
// Verify runs SolveSerial on a copy of the initial grid and scans every cell
// of the distributed result, reporting all cells that differ by at least the
// given tolerance.
//
// # Errors
//
// A failing message operation aborts Solve with a wrapped error. Under
// cluster.Run that error cancels the whole group. There is no guard against
// numeric divergence.
package solver
