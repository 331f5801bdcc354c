package solver

import (
	"context"
	"fmt"

	"github.com/dreamware/relax/internal/cluster"
	"github.com/dreamware/relax/internal/stripe"
)

// Halo message tags.
const (
	tagForward  = 4
	tagBackward = 5
)

// neighbours returns the previous and next rank, or cluster.NoRank at the
// ends of the group.
func neighbours(c *cluster.Comm) (prev, next int) {
	prev, next = c.Rank()-1, c.Rank()+1
	if c.Rank() == 0 {
		prev = cluster.NoRank
	}
	if next == c.Size() {
		next = cluster.NoRank
	}
	return prev, next
}

// ExchangeHalo refreshes the stripe's ghost rows from its neighbours.
//
// The forward phase runs before the backward phase on every worker:
//  1. send row Extent-2 to next, receive row 0 from prev
//  2. send row 1 to prev, receive row Extent-1 from next
//
// Afterwards row 0 equals prev's row Extent-2, and row Extent-1 equals next's
// row 1, as they were at the end of the previous sweep.
func ExchangeHalo(ctx context.Context, c *cluster.Comm, s *stripe.Stripe) error {
	prev, next := neighbours(c)
	last := s.Extent - 1

	if err := c.Sendrecv(ctx, s.Row(last-1), next, tagForward, s.Row(0), prev, tagForward); err != nil {
		return fmt.Errorf("halo forward: %w", err)
	}
	if err := c.Sendrecv(ctx, s.Row(1), prev, tagBackward, s.Row(last), next, tagBackward); err != nil {
		return fmt.Errorf("halo backward: %w", err)
	}
	return nil
}
