package reduce

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// UMAP is a fit-then-transform reducer to two dimensions.
//
// Fit learns a layout for a sample; Transform places new vectors against the
// fitted sample without moving it. Not safe for concurrent use.
type UMAP struct {
	cfg Config
	rng *rand.Rand

	data      [][]float64
	embedding [][2]float64
	k         int
}

// NewUMAP returns an unfitted reducer.
func NewUMAP(cfg Config) *UMAP {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	if cfg.NEpochs <= 0 {
		cfg.NEpochs = DefaultEpochs
	}
	if cfg.NNeighbors < 1 {
		cfg.NNeighbors = minNeighbors
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 1.0
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1.0
	}
	return &UMAP{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Fit learns a 2-D layout for data and returns one point per row, in order.
func (u *UMAP) Fit(data [][]float64) ([]Point, error) {
	n := len(data)
	if n == 0 {
		return nil, errors.New("no vectors to fit")
	}
	u.data = data

	if n == 1 {
		u.k = 0
		u.embedding = [][2]float64{{0, 0}}
		return toPoints(u.embedding), nil
	}

	// The sample can be smaller than the run-derived neighbor count.
	u.k = min(u.cfg.NNeighbors, n-1)

	nn := nearest(data, data, u.k, true)
	sigmas, rhos := smoothDistances(nn.dists, float64(u.k))
	g := symmetrize(memberships(nn, sigmas, rhos))

	a, b := curveParams(u.cfg.Spread, u.cfg.MinDist)
	emb := initialLayout(g, n, u.rng)
	optimize(emb, emb, g, layoutParams{
		a:            a,
		b:            b,
		epochs:       u.cfg.NEpochs,
		learningRate: u.cfg.LearningRate,
		negRate:      u.cfg.NegativeSampleRate,
		moveTails:    true,
		sameSet:      true,
	}, u.rng)

	u.embedding = emb
	return toPoints(emb), nil
}

// Transform places rows of data into the fitted layout and returns one point
// per row, in order. The fitted points do not move.
func (u *UMAP) Transform(data [][]float64) ([]Point, error) {
	if u.embedding == nil {
		return nil, errors.New("transform called before fit")
	}
	if len(data) == 0 {
		return []Point{}, nil
	}
	if dim := len(u.data[0]); len(data[0]) != dim {
		return nil, fmt.Errorf("vector dimension %d does not match fitted dimension %d", len(data[0]), dim)
	}

	if u.k == 0 {
		// A single fitted point has no neighborhood to place against.
		out := make([]Point, len(data))
		for i := range out {
			out[i] = toPoint(u.embedding[0])
		}
		return out, nil
	}

	nn := nearest(data, u.data, u.k, false)
	sigmas, rhos := smoothDistances(nn.dists, float64(u.k))
	g := normalizeRows(memberships(nn, sigmas, rhos), len(data))

	emb := make([][2]float64, len(data))
	for i, w := range g.weights {
		h, t := g.heads[i], g.tails[i]
		emb[h][0] += w * u.embedding[t][0]
		emb[h][1] += w * u.embedding[t][1]
	}

	a, b := curveParams(u.cfg.Spread, u.cfg.MinDist)
	optimize(emb, u.embedding, g, layoutParams{
		a:            a,
		b:            b,
		epochs:       max(u.cfg.NEpochs/3, 1),
		learningRate: u.cfg.LearningRate / 4,
		negRate:      u.cfg.NegativeSampleRate,
	}, u.rng)

	return toPoints(emb), nil
}

func toPoint(p [2]float64) Point { return Point{X: p[0], Y: p[1]} }

func toPoints(emb [][2]float64) []Point {
	out := make([]Point, len(emb))
	for i, p := range emb {
		out[i] = toPoint(p)
	}
	return out
}
