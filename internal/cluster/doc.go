// Package cluster provides the message-passing layer that lets a fixed group
// of workers run the same program on different rows of the grid.
//
// # Overview
//
// A group has Size() workers, numbered 0..Size()-1 by rank. Rank 0 is the
// root: it owns the full grid and drives the collectives. Every worker holds a
// Comm, an explicit handle on its rank, the group size and a Transport. The
// Comm is threaded through every call; there is no global communicator.
//
//	         ┌──────────────┐
//	         │   Root (0)   │
//	         │  full grid   │
//	         └──────┬───────┘
//	  bcast/scatter │ gather/reduce
//	   ┌────────────┼────────────┐
//	┌──▼──┐      ┌──▼──┐      ┌──▼──┐
//	│  0  │◄────►│  1  │◄────►│  2  │   halo Sendrecv
//	└─────┘      └─────┘      └─────┘
//
// # Operations
//
// Point-to-point:
//   - Sendrecv: paired send and receive, either side may be NoRank
//
// Collectives (every rank must call them in the same order):
//   - Bcast: copy root's buffer to every rank
//   - Scatterv: root sends a variable-length slice to each rank
//   - Gatherv: root collects a variable-length slice from each rank
//   - AllreduceMax: every rank receives the group maximum
//   - Barrier: wait for the whole group
//
// # Transports
//
// LocalTransport runs the group inside one process, one goroutine per rank,
// with messages handed between mailboxes. Run builds such a group.
//
// HTTPTransport runs each rank in its own process. Messages are JSON
// Envelopes posted to the peer's /mpi/message endpoint; /health reports the
// peer's rank and group size so processes can wait for each other before the
// first collective. A process refuses any Envelope larger than its message
// limit (see SetMessageLimit) with 413 Request Entity Too Large.
//
// Both transports are eager: Send queues the message at the receiver and
// returns without waiting for the matching Recv.
//
// # Failure Handling
//
// There is no retry of collectives and no recovery. Every call blocks without
// a timeout of its own; the only way out of a stalled collective is the
// context. Run cancels the shared context as soon as any rank fails, so the
// whole group stops.
package cluster
