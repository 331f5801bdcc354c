package solver

import (
	"context"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/dreamware/relax/internal/cluster"
	"github.com/dreamware/relax/internal/grid"
	"github.com/dreamware/relax/internal/partition"
	"github.com/dreamware/relax/internal/stripe"
)

// Distribute scatters the root's grid so that every worker's stripe holds
// its block plus its ghost rows, already seeded with the neighbours' values.
// g is only read on the root.
func Distribute(ctx context.Context, c *cluster.Comm, g *grid.Grid, s *stripe.Stripe) error {
	var (
		send           []float64
		counts, displs []int
	)
	if c.IsRoot() {
		table, err := rootTable(s.Cols, c.Size())
		if err != nil {
			return err
		}
		counts, displs = partition.ScatterCounts(table, s.Cols)
		send = g.Cells
	}
	if err := c.Scatterv(ctx, cluster.Root, send, counts, displs, s.Data()); err != nil {
		return fmt.Errorf("distribute: %w", err)
	}
	return nil
}

// Collect gathers every worker's owned rows into the root's grid at the
// offsets of the same partition table the scatter used.
// g is only written on the root.
func Collect(ctx context.Context, c *cluster.Comm, s *stripe.Stripe, g *grid.Grid) error {
	var (
		recv           []float64
		counts, displs []int
	)
	if c.IsRoot() {
		table, err := rootTable(s.Cols, c.Size())
		if err != nil {
			return err
		}
		counts, displs = partition.GatherCounts(table, s.Cols)
		recv = g.Cells
	}
	if err := c.Gatherv(ctx, cluster.Root, s.Owned(), recv, counts, displs); err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	return nil
}

// rootTable builds the partition table the root scatters and gathers with,
// and rejects it unless it tiles all n rows.
func rootTable(n, workers int) ([]partition.Block, error) {
	table, err := partition.Table(n, workers)
	if err != nil {
		return nil, err
	}
	if err := partition.Validate(table, n); err != nil {
		return nil, fmt.Errorf("root partition: %w", err)
	}
	return table, nil
}

// MessageLimit returns the largest payload, in values, that any worker of a
// workers-wide group receives while solving an n×n grid. The root's scatter
// window is the widest; halo rows and the parameter broadcast are shorter.
func MessageLimit(n, workers int) (int, error) {
	table, err := rootTable(n, workers)
	if err != nil {
		return 0, err
	}
	counts, _ := partition.ScatterCounts(table, n)
	return max(slices.Max(counts), n, paramsLen), nil
}
