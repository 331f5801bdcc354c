package cluster

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/relax/internal/mailbox"
)

// LocalTransport connects the ranks of an in-process group through their
// mailboxes. Each rank's goroutine owns one LocalTransport.
type LocalTransport struct {
	boxes []*mailbox.Mailbox // One inbox per rank, shared by the group
	rank  int
}

// NewLocalTransports returns one connected transport per rank.
// Close every transport once the group is done.
func NewLocalTransports(size int) ([]*LocalTransport, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	boxes := make([]*mailbox.Mailbox, size)
	for r := range boxes {
		boxes[r] = mailbox.New()
	}
	out := make([]*LocalTransport, size)
	for r := range out {
		out[r] = &LocalTransport{rank: r, boxes: boxes}
	}
	return out, nil
}

// Send places a copy of data in dst's mailbox.
func (t *LocalTransport) Send(_ context.Context, dst, tag int, data []float64) error {
	if dst < 0 || dst >= len(t.boxes) {
		return fmt.Errorf("%w: %d", ErrInvalidRank, dst)
	}
	return t.boxes[dst].Put(mailbox.Key{Source: t.rank, Tag: tag}, data)
}

// Recv takes the oldest message from src with the given tag.
func (t *LocalTransport) Recv(ctx context.Context, src, tag int) ([]float64, error) {
	return t.boxes[t.rank].Take(ctx, mailbox.Key{Source: src, Tag: tag})
}

// Close closes this rank's mailbox.
func (t *LocalTransport) Close() {
	t.boxes[t.rank].Close()
}

// WorkerFunc is the program every rank of a group runs.
type WorkerFunc func(ctx context.Context, c *Comm) error

// Run executes fn once per rank of a size-worker in-process group and waits
// for all of them.
//
// The group is fail-stop: the first rank to return an error cancels the
// context shared by the group, which unblocks every other rank at its next
// message operation. Run returns that first error.
//
// Example:
//
//	err := cluster.Run(ctx, 4, func(ctx context.Context, c *cluster.Comm) error {
//	    m, err := c.AllreduceMax(ctx, float64(c.Rank()))
//	    // m == 3 on every rank
//	    return err
//	})
func Run(ctx context.Context, size int, fn WorkerFunc) error {
	transports, err := NewLocalTransports(size)
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range transports {
			t.Close()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for r, t := range transports {
		comm, err := NewComm(t, r, size)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := fn(gctx, comm); err != nil {
				if gctx.Err() == nil {
					log.Printf("worker[%d] failed: %v", r, err)
				}
				return fmt.Errorf("worker[%d]: %w", r, err)
			}
			return nil
		})
	}
	return g.Wait()
}
