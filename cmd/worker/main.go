// Package main implements one worker process of a relaxation group whose
// ranks talk over HTTP.
//
// Every process of the group is started with the same peer list; its own
// position in that list is its rank. Rank 0 builds the grid, and after the
// run it prints the result line (and optionally the grid and the serial
// cross-check).
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                Worker                    │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health       - Rank and group size  │
//	│    /mpi/message  - Incoming messages    │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    HTTPTransport - Mailbox + peer posts │
//	│    Comm          - Collectives          │
//	│    solver.Solve  - Relaxation pipeline  │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - WORKER_RANK: Position of this worker in WORKER_PEERS (required)
//   - WORKER_PEERS: Comma-separated base URLs of all workers (required)
//   - WORKER_LISTEN: Listen address (default: ":9000")
//   - RELAX_CONFIG: YAML run configuration (optional)
//   - RELAX_*: Overrides of single configuration values
//
// Example usage:
//
//	PEERS=http://127.0.0.1:9000,http://127.0.0.1:9001
//	WORKER_RANK=1 WORKER_PEERS=$PEERS WORKER_LISTEN=:9001 ./worker &
//	WORKER_RANK=0 WORKER_PEERS=$PEERS WORKER_LISTEN=:9000 RELAX_SIZE=100 ./worker
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/relax/internal/cluster"
	"github.com/dreamware/relax/internal/config"
	"github.com/dreamware/relax/internal/grid"
	"github.com/dreamware/relax/internal/solver"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
// This indirection enables test code to intercept fatal errors
// without actually terminating the test process.
var logFatal = log.Fatalf

// peerTimeout bounds the wait for the rest of the group to come up.
const peerTimeout = 30 * time.Second

// settings is everything a worker reads from its environment.
type settings struct {
	Peers  []cluster.WorkerInfo
	Config config.Config
	Listen string
	Rank   int
}

// main reads the environment, serves the transport endpoints, runs the
// solve and shuts down.
//
// Exit codes:
//   - 0: Run completed
//   - 1: Missing or invalid configuration
//   - 1: Peers unreachable or run failed
func main() {
	s, err := readSettings()
	if err != nil {
		logFatal("worker: %v", err)
		return
	}

	lis, err := net.Listen("tcp", s.Listen)
	if err != nil {
		logFatal("listen: %v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, s, lis, os.Stdout); err != nil {
		logFatal("worker[%d]: %v", s.Rank, err)
	}
}

// readSettings collects the worker settings from the environment.
func readSettings() (settings, error) {
	var s settings

	rank, err := strconv.Atoi(mustGetenv("WORKER_RANK"))
	if err != nil {
		return s, fmt.Errorf("WORKER_RANK: %w", err)
	}
	peers, err := cluster.ParsePeers(mustGetenv("WORKER_PEERS"))
	if err != nil {
		return s, fmt.Errorf("WORKER_PEERS: %w", err)
	}
	if rank < 0 || rank >= len(peers) {
		return s, fmt.Errorf("WORKER_RANK %d outside a group of %d", rank, len(peers))
	}

	cfg := config.Default()
	if path := getenv("RELAX_CONFIG", ""); path != "" {
		if cfg, err = config.Load(path); err != nil {
			return s, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return s, err
	}
	cfg.Workers = len(peers)
	if err := cfg.Validate(); err != nil {
		return s, err
	}

	return settings{
		Rank:   rank,
		Peers:  peers,
		Config: cfg,
		Listen: getenv("WORKER_LISTEN", ":9000"),
	}, nil
}

// run serves the transport on lis, waits for the group, solves and writes
// the root's report to out.
//
// The flow:
//  1. Serve /health and /mpi/message
//  2. Poll every peer's /health until the group is complete
//  3. Run solver.Solve as this rank
//  4. Wait at a barrier until every rank has finished
//  5. Root prints results
//  6. Shut the server down
func run(ctx context.Context, s settings, lis net.Listener, out io.Writer) error {
	transport, err := cluster.NewHTTPTransport(s.Rank, s.Peers)
	if err != nil {
		return err
	}
	defer transport.Close()

	cfg := s.Config
	if limit, err := solver.MessageLimit(cfg.Size, transport.Size()); err == nil {
		transport.SetMessageLimit(limit)
	}

	srv := &http.Server{
		Handler:           transport.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("worker[%d] listening on %s (%d peers)", s.Rank, lis.Addr(), len(s.Peers))
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("worker[%d] server shutdown error: %v", s.Rank, err)
		}
		stats := transport.Stats()
		log.Printf("worker[%d] stopped: delivered=%d pending=%d", s.Rank, stats.Delivered, stats.Pending)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, peerTimeout)
	err = transport.WaitForPeers(waitCtx, 200*time.Millisecond)
	cancel()
	if err != nil {
		return err
	}
	log.Printf("worker[%d] group of %d is up", s.Rank, len(s.Peers))

	comm, err := cluster.NewComm(transport, s.Rank, transport.Size())
	if err != nil {
		return err
	}

	var initial, g *grid.Grid
	if comm.IsRoot() {
		initial = cfg.Grid(cfg.Size)
		g = initial.Clone()
	}

	res, err := solver.Solve(ctx, comm, g, solver.Params{Size: cfg.Size, Tolerance: cfg.Tolerance})
	if err != nil {
		return err
	}
	if err := comm.Barrier(ctx); err != nil {
		return fmt.Errorf("final barrier: %w", err)
	}
	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	default:
	}
	if !comm.IsRoot() {
		return nil
	}
	return report(out, cfg, initial, res)
}

// report prints the root's result line and the optional grid and check.
func report(out io.Writer, cfg config.Config, initial *grid.Grid, res solver.Result) error {
	fmt.Fprintf(out, "Size: %d, Workers: %d, Time: %f, Iterations: %d\n",
		cfg.Size, cfg.Workers, res.Duration.Seconds(), res.Iterations)
	if cfg.Print {
		if err := res.Grid.Fprint(out); err != nil {
			return err
		}
	}
	if !cfg.Verify {
		return nil
	}

	tol := cfg.Tolerance
	if cfg.Workers > 1 {
		tol = solver.AgreementBound(cfg.Size, cfg.Tolerance)
	}
	r, err := solver.Verify(initial, res.Grid, cfg.Tolerance, tol)
	if err != nil {
		return err
	}
	if !r.Identical() {
		return fmt.Errorf("%d cells differ from the serial result, max difference %g", len(r.Mismatches), r.MaxDiff)
	}
	fmt.Fprintf(out, "The results of the serial and distributed solvers are identical (tolerance %g, serial iterations %d)\n",
		tol, r.SerialIterations)
	return nil
}

// getenv retrieves an environment variable with a default fallback value.
//
// Example:
//
//	listen := getenv("WORKER_LISTEN", ":9000")
//	// Returns $WORKER_LISTEN if set, otherwise ":9000"
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// mustGetenv retrieves a required environment variable, terminating the
// program if it's not set.
func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
