package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/relax/internal/cluster"
	"github.com/dreamware/relax/internal/config"
	"github.com/dreamware/relax/internal/solver"
)

// TestGetenv tests the getenv utility function
func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      string
		expected string
	}{
		{
			name:     "environment variable set",
			key:      "TEST_WORKER_VAR",
			value:    "test_value",
			def:      "default",
			expected: "test_value",
		},
		{
			name:     "empty environment variable returns default",
			key:      "EMPTY_WORKER_VAR",
			value:    "",
			def:      "fallback",
			expected: "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			result := getenv(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

// TestMustGetenv tests the mustGetenv utility function
func TestMustGetenv(t *testing.T) {
	t.Run("variable set", func(t *testing.T) {
		t.Setenv("MUST_HAVE_VAR", "required_value")

		result := mustGetenv("MUST_HAVE_VAR")
		if result != "required_value" {
			t.Errorf("Expected 'required_value', got %s", result)
		}
	})

	t.Run("variable not set", func(t *testing.T) {
		oldLogFatal := logFatal
		defer func() { logFatal = oldLogFatal }()

		var msg string
		logFatal = func(format string, v ...interface{}) {
			msg = fmt.Sprintf(format, v...)
		}

		_ = mustGetenv("UNSET_REQUIRED_VAR")
		if msg != "missing env UNSET_REQUIRED_VAR" {
			t.Errorf("Expected fatal message, got %q", msg)
		}
	})
}

func TestReadSettings(t *testing.T) {
	const peers = "http://127.0.0.1:9000, http://127.0.0.1:9001/,http://127.0.0.1:9002"

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relax.yaml")
		require.NoError(t, os.WriteFile(path, []byte("size: 40\nworkers: 1\n"), 0o644))

		t.Setenv("WORKER_RANK", "1")
		t.Setenv("WORKER_PEERS", peers)
		t.Setenv("WORKER_LISTEN", ":9001")
		t.Setenv("RELAX_CONFIG", path)
		t.Setenv("RELAX_TOLERANCE", "0.01")

		s, err := readSettings()
		require.NoError(t, err)
		assert.Equal(t, 1, s.Rank)
		assert.Equal(t, ":9001", s.Listen)
		require.Len(t, s.Peers, 3)
		assert.Equal(t, "http://127.0.0.1:9001", s.Peers[1].Addr)
		assert.Equal(t, 40, s.Config.Size)
		assert.Equal(t, 0.01, s.Config.Tolerance)
		assert.Equal(t, 3, s.Config.Workers, "group size comes from the peer list")
	})

	t.Run("default listen address", func(t *testing.T) {
		t.Setenv("WORKER_RANK", "0")
		t.Setenv("WORKER_PEERS", peers)
		t.Setenv("WORKER_LISTEN", "")
		t.Setenv("RELAX_CONFIG", "")

		s, err := readSettings()
		require.NoError(t, err)
		assert.Equal(t, ":9000", s.Listen)
	})

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "rank not a number", env: map[string]string{"WORKER_RANK": "one", "WORKER_PEERS": peers}},
		{name: "rank outside group", env: map[string]string{"WORKER_RANK": "3", "WORKER_PEERS": peers}},
		{name: "empty peer", env: map[string]string{"WORKER_RANK": "0", "WORKER_PEERS": "http://a,,http://b"}},
		{name: "bad override", env: map[string]string{"WORKER_RANK": "0", "WORKER_PEERS": peers, "RELAX_SIZE": "big"}},
		{name: "invalid config", env: map[string]string{"WORKER_RANK": "0", "WORKER_PEERS": peers, "RELAX_INIT": "ones"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RELAX_CONFIG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := readSettings()
			assert.Error(t, err)
		})
	}
}

// startGroup runs one worker per rank over loopback HTTP and returns each
// rank's output and error.
func startGroup(t *testing.T, size int, cfg config.Config) ([]string, []error) {
	t.Helper()

	listeners := make([]net.Listener, size)
	addrs := make([]string, size)
	for r := range listeners {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[r] = lis
		addrs[r] = "http://" + lis.Addr().String()
	}
	peers, err := cluster.ParsePeers(strings.Join(addrs, ","))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg.Workers = size
	outs := make([]bytes.Buffer, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			s := settings{Rank: r, Peers: peers, Config: cfg, Listen: addrs[r]}
			errs[r] = run(ctx, s, listeners[r], &outs[r])
		}(r)
	}
	wg.Wait()

	out := make([]string, size)
	for r := range outs {
		out[r] = outs[r].String()
	}
	return out, errs
}

// TestRunGroup tests a three-process style run over HTTP
func TestRunGroup(t *testing.T) {
	cfg := config.Default()
	cfg.Verify = true

	out, errs := startGroup(t, 3, cfg)
	for r, err := range errs {
		require.NoError(t, err, "rank %d", r)
	}

	assert.Contains(t, out[0], "Size: 10, Workers: 3, Time: ")
	assert.Contains(t, out[0], "Iterations: 115\n")
	assert.Contains(t, out[0], "identical")
	assert.Empty(t, out[1])
	assert.Empty(t, out[2])
}

func TestRunGroupRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Size = 3

	_, errs := startGroup(t, 3, cfg)
	for r, err := range errs {
		assert.ErrorIs(t, err, solver.ErrInvalidParams, "rank %d", r)
	}
}

func TestReportPrint(t *testing.T) {
	cfg := config.Default()
	cfg.Size = 4
	cfg.Print = true
	initial := cfg.Grid(4)

	res, err := solver.Run(context.Background(), 1, initial.Clone(), solver.Params{Size: 4, Tolerance: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report(&buf, cfg, initial, res))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Size: 4, Workers: 1, Time: ", lines[0][:len("Size: 4, Workers: 1, Time: ")])
	assert.Equal(t, "100.0000 100.0000 100.0000 100.0000 ", lines[1])
}
