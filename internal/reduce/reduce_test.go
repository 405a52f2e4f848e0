package reduce

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusters returns n points around each of the given centers in dim dimensions.
func clusters(rng *rand.Rand, centers [][]float64, n int, noise float64) [][]float64 {
	var out [][]float64
	for _, c := range centers {
		for range n {
			row := make([]float64, len(c))
			for d := range c {
				row[d] = c[d] + (rng.Float64()-0.5)*noise
			}
			out = append(out, row)
		}
	}
	return out
}

func centroid(points []Point) Point {
	var c Point
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(len(points))
	c.Y /= float64(len(points))
	return c
}

func dist(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func requireFinite(t *testing.T, points []Point) {
	t.Helper()
	for i, p := range points {
		require.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y), "point %d is NaN", i)
		require.False(t, math.IsInf(p.X, 0) || math.IsInf(p.Y, 0), "point %d is Inf", i)
	}
}

func TestNeighborCount(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{1, 2},
		{2, 2},
		{3, 2},
		{4, 3},
		{10, 9},
		{16, 15},
		{17, 15},
		{100000, 15},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NeighborCount(tt.total), "total=%d", tt.total)
	}
}

func TestDefaultConfigConstants(t *testing.T) {
	cfg := DefaultConfig(500)
	assert.Equal(t, 15, cfg.NNeighbors)
	assert.Equal(t, 0.1, cfg.MinDist)
	assert.Equal(t, 1.0, cfg.Spread)
	assert.Equal(t, 300, cfg.NEpochs)
}

func TestCurveParams(t *testing.T) {
	a, b := curveParams(1.0, 0.1)
	// Reference values for spread=1, min_dist=0.1 are roughly a=1.58, b=0.90.
	assert.InDelta(t, 1.58, a, 0.25)
	assert.InDelta(t, 0.90, b, 0.1)
}

func TestNearestSkipsSelfAndSorts(t *testing.T) {
	data := [][]float64{{0}, {1}, {3}, {6}}
	nn := nearest(data, data, 2, true)

	assert.Equal(t, []int{1, 2}, nn.indices[0])
	assert.Equal(t, []float64{1, 3}, nn.dists[0])
	assert.Equal(t, []int{2, 1}, nn.indices[3])
	for i, row := range nn.indices {
		assert.NotContains(t, row, i)
	}
}

func TestSymmetrizeIsSymmetric(t *testing.T) {
	var g graph
	g.add(0, 1, 0.5)
	g.add(1, 2, 1.0)
	out := symmetrize(g)

	weights := map[[2]int]float64{}
	for i, w := range out.weights {
		weights[[2]int{out.heads[i], out.tails[i]}] = w
	}
	assert.InDelta(t, 0.5, weights[[2]int{0, 1}], 1e-12)
	assert.InDelta(t, 0.5, weights[[2]int{1, 0}], 1e-12)
	assert.InDelta(t, 1.0, weights[[2]int{2, 1}], 1e-12)
}

func TestUMAPFitSeparatesClusters(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	data := clusters(rng, [][]float64{
		{0, 0, 0, 0, 0, 0},
		{5, 5, 5, 5, 5, 5},
	}, 12, 0.5)

	cfg := DefaultConfig(len(data))
	cfg.NNeighbors = 5
	cfg.Seed = 11
	points, err := NewUMAP(cfg).Fit(data)
	require.NoError(t, err)
	require.Len(t, points, len(data))
	requireFinite(t, points)

	a, b := points[:12], points[12:]
	ca, cb := centroid(a), centroid(b)
	var spread float64
	for _, p := range a {
		spread = max(spread, dist(p, ca))
	}
	for _, p := range b {
		spread = max(spread, dist(p, cb))
	}
	assert.Greater(t, dist(ca, cb), spread, "clusters overlap in the layout")
}

func TestUMAPSpectralInit(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	data := clusters(rng, [][]float64{{0, 0, 0}, {4, 4, 4}, {-4, 4, 0}}, 20, 0.8)

	cfg := DefaultConfig(len(data))
	cfg.NEpochs = 50
	cfg.Seed = 1
	points, err := NewUMAP(cfg).Fit(data)
	require.NoError(t, err)
	require.Len(t, points, 60)
	requireFinite(t, points)
}

func TestUMAPTransformPlacesNearNeighbors(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	centers := [][]float64{{0, 0, 0, 0}, {6, 6, 6, 6}}
	data := clusters(rng, centers, 10, 0.4)

	cfg := DefaultConfig(30)
	cfg.NNeighbors = 5
	cfg.Seed = 99
	u := NewUMAP(cfg)
	fitted, err := u.Fit(data)
	require.NoError(t, err)

	queries := clusters(rng, centers, 3, 0.4)
	placed, err := u.Transform(queries)
	require.NoError(t, err)
	require.Len(t, placed, 6)
	requireFinite(t, placed)

	ca, cb := centroid(fitted[:10]), centroid(fitted[10:])
	for i, p := range placed[:3] {
		assert.Less(t, dist(p, ca), dist(p, cb), "query %d from first cluster placed nearer the second", i)
	}
	for i, p := range placed[3:] {
		assert.Less(t, dist(p, cb), dist(p, ca), "query %d from second cluster placed nearer the first", i)
	}
}

func TestUMAPFitSinglePoint(t *testing.T) {
	u := NewUMAP(DefaultConfig(1))
	points, err := u.Fit([][]float64{{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, []Point{{0, 0}}, points)

	placed, err := u.Transform([][]float64{{4, 5, 6}, {7, 8, 9}})
	require.NoError(t, err)
	assert.Equal(t, []Point{{0, 0}, {0, 0}}, placed)
}

func TestUMAPTwoPoints(t *testing.T) {
	u := NewUMAP(DefaultConfig(2))
	points, err := u.Fit([][]float64{{0, 1}, {1, 0}})
	require.NoError(t, err)
	require.Len(t, points, 2)
	requireFinite(t, points)
}

func TestUMAPTransformDimensionMismatch(t *testing.T) {
	u := NewUMAP(DefaultConfig(3))
	_, err := u.Fit([][]float64{{0, 1}, {1, 0}, {1, 1}})
	require.NoError(t, err)

	_, err = u.Transform([][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

func TestAdapterStateMachine(t *testing.T) {
	a := NewAdapter(4, 1)
	assert.False(t, a.Fitted())
	assert.Equal(t, 3, a.NeighborCount())

	assert.Panics(t, func() {
		_, _ = a.Transform([][]float32{{1, 2}})
	})

	points, err := a.Fit([][]float32{{0, 1}, {1, 0}, {1, 1}})
	require.NoError(t, err)
	assert.Len(t, points, 3)
	assert.True(t, a.Fitted())

	placed, err := a.Transform([][]float32{{0.5, 0.5}})
	require.NoError(t, err)
	assert.Len(t, placed, 1)

	empty, err := a.Transform(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.Panics(t, func() {
		_, _ = a.Fit([][]float32{{0, 1}})
	})
}

func TestAdapterRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
	}{
		{"empty", nil},
		{"ragged", [][]float32{{1, 2}, {1}}},
		{"nan", [][]float32{{1, float32(math.NaN())}, {1, 2}}},
		{"zero width", [][]float32{{}, {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(2, 1)
			_, err := a.Fit(tt.vectors)
			var rerr *ReductionError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, "fit", rerr.Op)
			assert.False(t, a.Fitted())
		})
	}
}

func TestAdapterTransformDimensionMismatch(t *testing.T) {
	a := NewAdapter(3, 1)
	_, err := a.Fit([][]float32{{0, 1}, {1, 0}, {1, 1}})
	require.NoError(t, err)

	_, err = a.Transform([][]float32{{1, 2, 3}})
	var rerr *ReductionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "transform", rerr.Op)
}
