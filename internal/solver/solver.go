// Package solver runs the distributed Gauss–Seidel relaxation and its serial
// reference. See doc.go for complete package documentation.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dreamware/relax/internal/cluster"
	"github.com/dreamware/relax/internal/grid"
	"github.com/dreamware/relax/internal/partition"
	"github.com/dreamware/relax/internal/stripe"
)

var (
	// ErrInvalidParams is returned on every worker when the root rejects the
	// run parameters.
	ErrInvalidParams = errors.New("solver: invalid parameters")

	// ErrNoGrid is returned when the root has no grid to distribute.
	ErrNoGrid = errors.New("solver: root has no grid")
)

// Params are the inputs the root broadcasts before distributing the grid.
type Params struct {
	Size      int     // Grid rows and columns
	Tolerance float64 // Stop once the global deviation is at most this
}

// Validate checks p for a group of the given size.
func (p Params) Validate(workers int) error {
	switch {
	case p.Size <= 2:
		return fmt.Errorf("%w: grid size %d must be greater than 2", ErrInvalidParams, p.Size)
	case p.Tolerance <= 0:
		return fmt.Errorf("%w: tolerance %g must be greater than 0", ErrInvalidParams, p.Tolerance)
	case p.Size <= workers:
		return fmt.Errorf("%w: grid size %d must be greater than the number of workers %d, "+
			"since with as many workers as rows the last block has no interior row to carry ghost rows",
			ErrInvalidParams, p.Size, workers)
	}
	return nil
}

// Result is what a worker learns from a run.
type Result struct {
	Grid       *grid.Grid    // Assembled result, root only
	Params     Params        // Parameters received from the root
	Iterations int           // Sweeps until convergence
	Sweeps     uint64        // Local sweeps this worker's stripe ran
	Deviation  float64       // This worker's local deviation on the last sweep
	Duration   time.Duration // Distribution, iteration and collection time
}

// Verdicts the root broadcasts along with the parameters.
const (
	verdictOK      = 0
	verdictInvalid = 1
	verdictNoGrid  = 2
)

// paramsLen is the length of the parameter broadcast: size, tolerance and
// verdict.
const paramsLen = 3

// shareParams validates p on the root and broadcasts it, together with the
// verdict, to the whole group so that every worker returns the same error
// when the run is rejected.
func shareParams(ctx context.Context, c *cluster.Comm, g *grid.Grid, p Params) (Params, error) {
	buf := make([]float64, paramsLen)
	var rootErr error
	if c.IsRoot() {
		rootErr = p.Validate(c.Size())
		switch {
		case rootErr != nil:
			buf[2] = verdictInvalid
		case g == nil || g.N != p.Size:
			rootErr = ErrNoGrid
			buf[2] = verdictNoGrid
		}
		buf[0], buf[1] = float64(p.Size), p.Tolerance
	}
	if err := c.Bcast(ctx, cluster.Root, buf); err != nil {
		return Params{}, fmt.Errorf("broadcast params: %w", err)
	}
	if rootErr != nil {
		return Params{}, rootErr
	}
	switch buf[2] {
	case verdictOK:
		return Params{Size: int(buf[0]), Tolerance: buf[1]}, nil
	case verdictNoGrid:
		return Params{}, fmt.Errorf("%w: reported by root", ErrNoGrid)
	default:
		return Params{}, fmt.Errorf("%w: rejected by root", ErrInvalidParams)
	}
}

// Solve runs the distributed relaxation on the worker behind c.
//
// Every worker of the group must call Solve. Only the root's g and p are
// read; on the root g is relaxed in place and returned in Result.Grid.
//
// Flow:
//  1. Root validates and broadcasts p
//  2. Each worker computes its own partition block
//  3. Distribute scatters the stripes
//  4. Loop: halo exchange, local sweep, global maximum, until converged
//  5. Collect gathers the owned rows back into g
func Solve(ctx context.Context, c *cluster.Comm, g *grid.Grid, p Params) (Result, error) {
	p, err := shareParams(ctx, c, g, p)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()

	block, err := partition.Layout(p.Size, c.Size(), c.Rank())
	if err != nil {
		return Result{}, err
	}
	s := stripe.New(block, c.Size(), p.Size)
	defer s.Release()

	if err := Distribute(ctx, c, g, s); err != nil {
		return Result{}, err
	}

	iterations, err := iterate(ctx, c, s, p.Tolerance)
	if err != nil {
		return Result{}, err
	}

	if err := Collect(ctx, c, s, g); err != nil {
		return Result{}, err
	}

	res := Result{
		Params:     p,
		Iterations: iterations,
		Sweeps:     s.Sweeps(),
		Deviation:  s.LastDeviation(),
		Duration:   time.Since(start),
	}
	log.Printf("worker[%d] rows %d-%d: sweeps=%d deviation=%g",
		c.Rank(), block.Offset, block.End()-1, res.Sweeps, res.Deviation)
	if c.IsRoot() {
		res.Grid = g
		log.Printf("worker[%d] converged: size=%d workers=%d iterations=%d", c.Rank(), p.Size, c.Size(), iterations)
	}
	return res, nil
}

// iterate runs sweeps until the global deviation drops to tol and returns
// the number of sweeps.
func iterate(ctx context.Context, c *cluster.Comm, s *stripe.Stripe, tol float64) (int, error) {
	iterations := 0
	for {
		if err := ctx.Err(); err != nil {
			return iterations, err
		}
		iterations++

		if err := ExchangeHalo(ctx, c, s); err != nil {
			return iterations, fmt.Errorf("iteration %d: %w", iterations, err)
		}

		local, err := s.Relax()
		if err != nil {
			return iterations, err
		}

		global, err := reduceDeviation(ctx, c, local)
		if err != nil {
			return iterations, fmt.Errorf("iteration %d: %w", iterations, err)
		}
		if global <= tol {
			return iterations, nil
		}
	}
}

// reduceDeviation combines the local deviations of all workers into the
// global maximum. The stop decision is taken on this shared value only.
func reduceDeviation(ctx context.Context, c *cluster.Comm, local float64) (float64, error) {
	global, err := c.AllreduceMax(ctx, local)
	if err != nil {
		return 0, fmt.Errorf("reduce deviation: %w", err)
	}
	return global, nil
}

// Run solves g with workers in-process workers and returns the root's result.
func Run(ctx context.Context, workers int, g *grid.Grid, p Params) (Result, error) {
	var res Result
	err := cluster.Run(ctx, workers, func(ctx context.Context, c *cluster.Comm) error {
		var in *grid.Grid
		if c.IsRoot() {
			in = g
		}
		r, err := Solve(ctx, c, in, p)
		if err != nil {
			return err
		}
		if c.IsRoot() {
			res = r
		}
		return nil
	})
	return res, err
}
