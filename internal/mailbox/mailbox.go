// Package mailbox implements a worker's inbox of point-to-point messages.
//
// Messages are queued per (source, tag) key in arrival order. Put never
// blocks; Take blocks until a message with the requested key is available,
// the context is done, or the mailbox is closed. Because every worker issues
// its collectives and exchanges in the same order, per-key FIFO order is
// enough to match each receive with the send that produced it.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Take and Put after Close.
var ErrClosed = errors.New("mailbox: closed")

// Key identifies a message stream from one sender.
type Key struct {
	Source int // Sending worker
	Tag    int // Message tag
}

// Stats contains statistics about the mailbox
type Stats struct {
	Pending   int // Messages queued but not yet taken
	Delivered int // Messages handed to Take
}

// slot holds the queued payloads for one key
type slot struct {
	wake  chan struct{} // Signalled on Put, capacity 1
	items [][]float64
}

// Mailbox is a thread-safe inbox keyed by Key
type Mailbox struct {
	slots     map[Key]*slot // Pending messages
	done      chan struct{} // Closed by Close
	mu        sync.Mutex    // Protects slots, closed and delivered
	delivered int
	closed    bool
}

// New creates an empty mailbox
func New() *Mailbox {
	return &Mailbox{
		slots: make(map[Key]*slot),
		done:  make(chan struct{}),
	}
}

// slotLocked returns the slot for k, creating it. Callers hold m.mu.
func (m *Mailbox) slotLocked(k Key) *slot {
	s, ok := m.slots[k]
	if !ok {
		s = &slot{wake: make(chan struct{}, 1)}
		m.slots[k] = s
	}
	return s
}

// Put enqueues a copy of data under key k.
func (m *Mailbox) Put(k Key, data []float64) error {
	stored := make([]float64, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	s := m.slotLocked(k)
	s.items = append(s.items, stored)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Take removes and returns the oldest message queued under key k, blocking
// until one arrives.
func (m *Mailbox) Take(ctx context.Context, k Key) ([]float64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		s := m.slotLocked(k)
		if len(s.items) > 0 {
			data := s.items[0]
			s.items[0] = nil
			s.items = s.items[1:]
			m.delivered++
			m.mu.Unlock()
			return data, nil
		}
		wake := s.wake
		m.mu.Unlock()

		select {
		case <-wake:
		case <-m.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close wakes every blocked Take and rejects further use.
// It is safe to call more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}

// Stats returns mailbox statistics
func (m *Mailbox) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := 0
	for _, s := range m.slots {
		pending += len(s.items)
	}
	return Stats{Pending: pending, Delivered: m.delivered}
}
