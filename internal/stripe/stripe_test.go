package stripe

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/relax/internal/grid"
	"github.com/dreamware/relax/internal/partition"
)

// load copies the rows a stripe covers out of a full grid
func load(s *Stripe, g *grid.Grid) {
	copy(s.Data(), g.Cells[s.Block.Offset*g.N:(s.Block.Offset+s.Extent)*g.N])
}

// TestNew tests buffer sizing
func TestNew(t *testing.T) {
	table, err := partition.Table(10, 3)
	require.NoError(t, err)

	tests := []struct {
		name   string
		block  partition.Block
		extent int
	}{
		{name: "first worker carries a trailing ghost", block: table[0], extent: 5},
		{name: "middle worker carries a trailing ghost", block: table[1], extent: 5},
		{name: "last worker ends on the boundary", block: table[2], extent: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.block, 3, 10)
			assert.Equal(t, tt.extent, s.Extent)
			assert.Len(t, s.Data(), tt.extent*10)
			assert.Equal(t, uint64(0), s.Sweeps())
		})
	}
}

// TestRelax tests that a single-worker stripe relaxes exactly like the grid kernel
func TestRelax(t *testing.T) {
	g := grid.NewRandom(8, grid.DefaultBoundary, rand.New(rand.NewSource(3)))
	table, err := partition.Table(8, 1)
	require.NoError(t, err)

	s := New(table[0], 1, 8)
	load(s, g)

	want := g.Clone()
	wantDev := grid.Sweep(want.Cells, 8, 8)

	dev, err := s.Relax()
	require.NoError(t, err)
	assert.Equal(t, wantDev, dev)
	assert.Equal(t, want.Cells, s.Data())
	assert.Equal(t, uint64(1), s.Sweeps())
	assert.Equal(t, dev, s.LastDeviation())
}

// TestRelaxLeavesGhostRows tests that edge rows and columns are never written
func TestRelaxLeavesGhostRows(t *testing.T) {
	g := grid.NewRandom(10, grid.DefaultBoundary, rand.New(rand.NewSource(9)))
	table, err := partition.Table(10, 3)
	require.NoError(t, err)

	s := New(table[1], 3, 10)
	load(s, g)

	top := append([]float64(nil), s.Row(0)...)
	bottom := append([]float64(nil), s.Row(s.Extent-1)...)

	for k := 0; k < 5; k++ {
		_, err := s.Relax()
		require.NoError(t, err)
	}

	assert.Equal(t, top, s.Row(0))
	assert.Equal(t, bottom, s.Row(s.Extent-1))
	for i := 0; i < s.Extent; i++ {
		assert.Equal(t, 100.0, s.Row(i)[0])
		assert.Equal(t, 100.0, s.Row(i)[9])
	}
}

// TestRelaxFixedPoint tests that relaxing a converged stripe stays converged
func TestRelaxFixedPoint(t *testing.T) {
	const eps = 1e-4
	g := grid.NewDirichlet(10, grid.DefaultBoundary, 0)
	table, err := partition.Table(10, 1)
	require.NoError(t, err)

	s := New(table[0], 1, 10)
	load(s, g)

	var dev float64
	for {
		dev, err = s.Relax()
		require.NoError(t, err)
		if dev <= eps {
			break
		}
	}

	again, err := s.Relax()
	require.NoError(t, err)
	assert.LessOrEqual(t, again, eps)
}

// TestOwned tests the rows contributed to the gather
func TestOwned(t *testing.T) {
	table, err := partition.Table(10, 3)
	require.NoError(t, err)

	first := New(table[0], 3, 10)
	assert.Len(t, first.Owned(), 40)
	assert.Same(t, &first.Data()[0], &first.Owned()[0])

	middle := New(table[1], 3, 10)
	assert.Len(t, middle.Owned(), 30)
	assert.Same(t, &middle.Data()[10], &middle.Owned()[0])
}

// TestRelease tests scoped buffer ownership
func TestRelease(t *testing.T) {
	table, err := partition.Table(5, 1)
	require.NoError(t, err)

	s := New(table[0], 1, 5)
	s.Release()
	s.Release()
	assert.Nil(t, s.Data())

	_, err = s.Relax()
	assert.ErrorIs(t, err, ErrReleased)
}
