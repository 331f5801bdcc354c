package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/dreamware/relax/internal/mailbox"
)

// MessagePath is the endpoint that accepts Envelopes.
const MessagePath = "/mpi/message"

// DefaultMessageLimit is the largest payload, in values, a transport accepts
// until SetMessageLimit is called.
const DefaultMessageLimit = 1 << 20

// Encoded size bounds of an Envelope: one JSON float64 with its separator,
// and the source, tag and field names around the data.
const (
	valueBytes    = 25
	envelopeBytes = 64
)

// HTTPTransport connects ranks running in separate processes. Each process
// serves Handler on its own address and posts Envelopes to its peers.
//
// A Send returns only after the receiving process has queued the message,
// which keeps per-(source, tag) ordering on the wire.
type HTTPTransport struct {
	box        *mailbox.Mailbox // Inbox for messages posted to this rank
	peers      []WorkerInfo     // Group members indexed by rank
	rank       int
	maxBody    int64         // Largest request body handleMessage reads
	retries    int           // Attempts when a peer is not listening yet
	retryDelay time.Duration // Delay between attempts
}

// ParsePeers turns a comma-separated list of base URLs into group members.
// The position in the list is the rank.
func ParsePeers(list string) ([]WorkerInfo, error) {
	var peers []WorkerInfo
	for i, addr := range strings.Split(list, ",") {
		addr = strings.TrimRight(strings.TrimSpace(addr), "/")
		if addr == "" {
			return nil, fmt.Errorf("cluster: empty peer address at position %d", i)
		}
		peers = append(peers, WorkerInfo{Rank: i, Addr: addr})
	}
	return peers, nil
}

// NewHTTPTransport creates the transport for rank within peers.
func NewHTTPTransport(rank int, peers []WorkerInfo) (*HTTPTransport, error) {
	if len(peers) == 0 {
		return nil, ErrInvalidSize
	}
	if rank < 0 || rank >= len(peers) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidRank, rank, len(peers))
	}
	t := &HTTPTransport{
		box:        mailbox.New(),
		peers:      peers,
		rank:       rank,
		retries:    25,
		retryDelay: 400 * time.Millisecond,
	}
	t.SetMessageLimit(DefaultMessageLimit)
	return t, nil
}

// Size returns the number of peers in the group.
func (t *HTTPTransport) Size() int { return len(t.peers) }

// SetMessageLimit bounds incoming Envelopes to values data values. Larger
// requests are refused with 413 Request Entity Too Large. It must be called
// before Handler is served.
func (t *HTTPTransport) SetMessageLimit(values int) {
	t.maxBody = int64(values)*valueBytes + envelopeBytes
}

// Stats returns the statistics of the transport's inbox.
func (t *HTTPTransport) Stats() mailbox.Stats { return t.box.Stats() }

// Send posts data to rank dst, retrying while dst refuses connections.
func (t *HTTPTransport) Send(ctx context.Context, dst, tag int, data []float64) error {
	if dst < 0 || dst >= len(t.peers) {
		return fmt.Errorf("%w: %d", ErrInvalidRank, dst)
	}
	env := Envelope{Source: t.rank, Tag: tag, Data: data}
	url := t.peers[dst].Addr + MessagePath

	var lastErr error
	for i := 0; i < t.retries; i++ {
		lastErr = PostJSON(ctx, url, env, nil)
		if lastErr == nil || !errors.Is(lastErr, syscall.ECONNREFUSED) {
			return lastErr
		}
		log.Printf("worker[%d] send to rank %d retry %d: %v", t.rank, dst, i+1, lastErr)
		select {
		case <-time.After(t.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Recv takes the oldest message posted by src with the given tag.
func (t *HTTPTransport) Recv(ctx context.Context, src, tag int) ([]float64, error) {
	return t.box.Take(ctx, mailbox.Key{Source: src, Tag: tag})
}

// Close rejects further messages and unblocks pending receives.
func (t *HTTPTransport) Close() {
	t.box.Close()
}

// Handler returns the HTTP routes a worker process must serve:
//   - POST /mpi/message: queue an Envelope
//   - GET /health: report rank and group size
func (t *HTTPTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(MessagePath, t.handleMessage)
	mux.HandleFunc("/health", t.handleHealth)
	return mux
}

func (t *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var env Envelope
	r.Body = http.MaxBytesReader(w, r.Body, t.maxBody)
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if env.Source < 0 || env.Source >= len(t.peers) {
		http.Error(w, "unknown source rank", http.StatusBadRequest)
		return
	}
	if err := t.box.Put(mailbox.Key{Source: env.Source, Tag: env.Tag}, env.Data); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Rank: t.rank, Size: len(t.peers)})
}

// WaitForPeers polls every peer's /health endpoint until all of them answer
// with the expected rank and group size, or ctx is done.
func (t *HTTPTransport) WaitForPeers(ctx context.Context, interval time.Duration) error {
	for _, p := range t.peers {
		for {
			var h HealthResponse
			err := GetJSON(ctx, p.Addr+"/health", &h)
			if err == nil {
				if h.Rank != p.Rank || h.Size != len(t.peers) {
					return fmt.Errorf("cluster: peer %s reports rank %d of %d, want %d of %d",
						p.Addr, h.Rank, h.Size, p.Rank, len(t.peers))
				}
				break
			}
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return fmt.Errorf("waiting for rank %d at %s: %w", p.Rank, p.Addr, ctx.Err())
			}
		}
	}
	return nil
}
