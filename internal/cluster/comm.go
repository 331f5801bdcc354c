package cluster

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// NoRank stands in for a missing neighbour. Sends to NoRank and receives from
// NoRank complete immediately without moving data.
const NoRank = -1

// Root is the rank that owns the full grid.
const Root = 0

// Tags reserved for collectives. Point-to-point tags must be non-negative.
const (
	tagBcast = -(iota + 1)
	tagScatter
	tagGather
	tagReduce
	tagReduceResult
)

var (
	// ErrInvalidRank is returned for a rank outside [0, size).
	ErrInvalidRank = errors.New("cluster: invalid rank")

	// ErrInvalidSize is returned for a group with no workers.
	ErrInvalidSize = errors.New("cluster: group size must be positive")

	// ErrLengthMismatch is returned when a received message does not fit the
	// buffer it was received into.
	ErrLengthMismatch = errors.New("cluster: message length mismatch")

	// ErrReservedTag is returned for a negative point-to-point tag.
	ErrReservedTag = errors.New("cluster: negative tags are reserved")
)

// Transport moves float64 payloads between ranks of one group.
//
// Send must not wait for the matching Recv; a payload is buffered by the
// receiving side until it is taken. Messages between one (source, tag) pair
// are delivered in the order they were sent.
type Transport interface {
	Send(ctx context.Context, dst, tag int, data []float64) error
	Recv(ctx context.Context, src, tag int) ([]float64, error)
}

// Comm is a worker's handle on its group: its own rank, the group size and
// the transport to reach the others. It is passed explicitly to every
// component; there is no process-wide communicator.
//
// All methods block. Collective operations must be called by every rank in
// the same order, or the group stalls until the context is cancelled.
type Comm struct {
	transport Transport
	rank      int
	size      int
}

// NewComm binds a transport to a rank of a size-worker group.
func NewComm(t Transport, rank, size int) (*Comm, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidRank, rank, size)
	}
	return &Comm{transport: t, rank: rank, size: size}, nil
}

// Rank returns the worker index in [0, Size()).
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of workers in the group.
func (c *Comm) Size() int { return c.size }

// IsRoot reports whether this worker is the root.
func (c *Comm) IsRoot() bool { return c.rank == Root }

func (c *Comm) checkPeer(r int) error {
	if r == NoRank {
		return nil
	}
	if r < 0 || r >= c.size {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRank, r, c.size)
	}
	return nil
}

// recvInto receives one message and copies it into buf, which must have the
// same length as the message.
func (c *Comm) recvInto(ctx context.Context, src, tag int, buf []float64) error {
	data, err := c.transport.Recv(ctx, src, tag)
	if err != nil {
		return err
	}
	if len(data) != len(buf) {
		return fmt.Errorf("%w: got %d values from rank %d, want %d", ErrLengthMismatch, len(data), src, len(buf))
	}
	copy(buf, data)
	return nil
}

// Sendrecv sends send to dst and receives into recv from src as one paired
// exchange. Either side may be NoRank.
//
// The send payload is handed to the transport before anything is received,
// so send and recv may alias the same stripe.
func (c *Comm) Sendrecv(ctx context.Context, send []float64, dst, sendTag int, recv []float64, src, recvTag int) error {
	if sendTag < 0 || recvTag < 0 {
		return ErrReservedTag
	}
	if err := c.checkPeer(dst); err != nil {
		return err
	}
	if err := c.checkPeer(src); err != nil {
		return err
	}
	if dst != NoRank {
		if err := c.transport.Send(ctx, dst, sendTag, send); err != nil {
			return fmt.Errorf("send to rank %d: %w", dst, err)
		}
	}
	if src != NoRank {
		if err := c.recvInto(ctx, src, recvTag, recv); err != nil {
			return fmt.Errorf("recv from rank %d: %w", src, err)
		}
	}
	return nil
}

// Bcast copies root's buf into buf on every other rank.
func (c *Comm) Bcast(ctx context.Context, root int, buf []float64) error {
	if err := c.checkPeer(root); err != nil || root == NoRank {
		return fmt.Errorf("%w: bcast root %d", ErrInvalidRank, root)
	}
	if c.rank != root {
		return c.recvInto(ctx, root, tagBcast, buf)
	}
	for r := 0; r < c.size; r++ {
		if r == root {
			continue
		}
		if err := c.transport.Send(ctx, r, tagBcast, buf); err != nil {
			return fmt.Errorf("bcast to rank %d: %w", r, err)
		}
	}
	return nil
}

// Scatterv sends send[displs[r] : displs[r]+counts[r]] from root to rank r,
// which receives it into recv. counts and displs are only read on root.
func (c *Comm) Scatterv(ctx context.Context, root int, send []float64, counts, displs []int, recv []float64) error {
	if err := c.checkPeer(root); err != nil || root == NoRank {
		return fmt.Errorf("%w: scatter root %d", ErrInvalidRank, root)
	}
	if c.rank != root {
		return c.recvInto(ctx, root, tagScatter, recv)
	}
	if len(counts) != c.size || len(displs) != c.size {
		return fmt.Errorf("%w: %d counts for %d ranks", ErrLengthMismatch, len(counts), c.size)
	}
	for r := 0; r < c.size; r++ {
		part := send[displs[r] : displs[r]+counts[r]]
		if r == root {
			if len(part) != len(recv) {
				return fmt.Errorf("%w: root part %d, buffer %d", ErrLengthMismatch, len(part), len(recv))
			}
			copy(recv, part)
			continue
		}
		if err := c.transport.Send(ctx, r, tagScatter, part); err != nil {
			return fmt.Errorf("scatter to rank %d: %w", r, err)
		}
	}
	return nil
}

// Gatherv collects send from every rank into recv[displs[r] : displs[r]+counts[r]]
// on root. recv, counts and displs are only read on root.
func (c *Comm) Gatherv(ctx context.Context, root int, send []float64, recv []float64, counts, displs []int) error {
	if err := c.checkPeer(root); err != nil || root == NoRank {
		return fmt.Errorf("%w: gather root %d", ErrInvalidRank, root)
	}
	if c.rank != root {
		return c.transport.Send(ctx, root, tagGather, send)
	}
	if len(counts) != c.size || len(displs) != c.size {
		return fmt.Errorf("%w: %d counts for %d ranks", ErrLengthMismatch, len(counts), c.size)
	}
	for r := 0; r < c.size; r++ {
		part := recv[displs[r] : displs[r]+counts[r]]
		if r == root {
			if len(send) != len(part) {
				return fmt.Errorf("%w: root part %d, buffer %d", ErrLengthMismatch, len(send), len(part))
			}
			copy(part, send)
			continue
		}
		if err := c.recvInto(ctx, r, tagGather, part); err != nil {
			return fmt.Errorf("gather from rank %d: %w", r, err)
		}
	}
	return nil
}

// AllreduceMax returns the maximum of v over all ranks. Every rank receives
// the same value from the same call.
func (c *Comm) AllreduceMax(ctx context.Context, v float64) (float64, error) {
	if c.rank != Root {
		if err := c.transport.Send(ctx, Root, tagReduce, []float64{v}); err != nil {
			return 0, fmt.Errorf("reduce to root: %w", err)
		}
		out := make([]float64, 1)
		if err := c.recvInto(ctx, Root, tagReduceResult, out); err != nil {
			return 0, fmt.Errorf("reduce result: %w", err)
		}
		return out[0], nil
	}

	vals := make([]float64, 1, c.size)
	vals[0] = v
	in := make([]float64, 1)
	for r := 1; r < c.size; r++ {
		if err := c.recvInto(ctx, r, tagReduce, in); err != nil {
			return 0, fmt.Errorf("reduce from rank %d: %w", r, err)
		}
		vals = append(vals, in[0])
	}
	m := slices.Max(vals)
	for r := 1; r < c.size; r++ {
		if err := c.transport.Send(ctx, r, tagReduceResult, []float64{m}); err != nil {
			return 0, fmt.Errorf("reduce result to rank %d: %w", r, err)
		}
	}
	return m, nil
}

// Barrier returns once every rank has entered it.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.AllreduceMax(ctx, 0)
	return err
}
