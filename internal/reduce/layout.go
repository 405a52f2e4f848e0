package reduce

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

const (
	// Spectral init needs a dense eigendecomposition; outside this range
	// random init is used instead.
	spectralMinPoints = 50
	spectralMaxPoints = 1000

	gradientClip = 4.0
	initScale    = 10.0
)

type abKey struct{ spread, minDist float64 }

var (
	abMu    sync.Mutex
	abCache = map[abKey][2]float64{}
)

// curveParams fits a and b in 1 / (1 + a*x^(2b)) to the target membership
// curve for the given spread and minimum distance. Results are memoized.
func curveParams(spread, minDist float64) (a, b float64) {
	key := abKey{spread, minDist}
	abMu.Lock()
	defer abMu.Unlock()
	if ab, ok := abCache[key]; ok {
		return ab[0], ab[1]
	}

	const nPoints = 300
	xv := make([]float64, nPoints)
	yv := make([]float64, nPoints)
	for i := range nPoints {
		xv[i] = float64(i) / float64(nPoints-1) * spread * 3
		if xv[i] < minDist {
			yv[i] = 1.0
		} else {
			yv[i] = math.Exp(-(xv[i] - minDist) / spread)
		}
	}

	// Coarse grid search, then a finer one around the best cell.
	search := func(aLo, aHi, aStep, bLo, bHi, bStep float64) (float64, float64) {
		bestA, bestB, bestErr := 1.0, 1.0, math.Inf(1)
		for at := aLo; at <= aHi; at += aStep {
			for bt := bLo; bt <= bHi; bt += bStep {
				var sse float64
				for i := range nPoints {
					d := 1.0/(1.0+at*math.Pow(xv[i], 2*bt)) - yv[i]
					sse += d * d
				}
				if sse < bestErr {
					bestA, bestB, bestErr = at, bt, sse
				}
			}
		}
		return bestA, bestB
	}
	a, b = search(0.1, 10.0, 0.1, 0.1, 2.0, 0.05)
	a, b = search(max(0.01, a-0.1), a+0.1, 0.01, max(0.01, b-0.05), b+0.05, 0.005)

	abCache[key] = [2]float64{a, b}
	return a, b
}

// initialLayout places n points using the graph Laplacian when the point count
// allows it and uniform noise otherwise.
func initialLayout(g graph, n int, rng *rand.Rand) [][2]float64 {
	if emb := spectralLayout(g, n); emb != nil {
		for i := range emb {
			emb[i][0] += (rng.Float64() - 0.5) * 1e-4
			emb[i][1] += (rng.Float64() - 0.5) * 1e-4
		}
		return emb
	}

	emb := make([][2]float64, n)
	for i := range emb {
		emb[i] = [2]float64{
			(rng.Float64() - 0.5) * initScale,
			(rng.Float64() - 0.5) * initScale,
		}
	}
	return emb
}

// spectralLayout embeds with the two smallest non-trivial eigenvectors of the
// symmetric normalized Laplacian, scaled into [0, initScale].
func spectralLayout(g graph, n int) [][2]float64 {
	if n < spectralMinPoints || n > spectralMaxPoints {
		return nil
	}

	degrees := make([]float64, n)
	for i, w := range g.weights {
		degrees[g.heads[i]] += w
	}

	lap := mat.NewSymDense(n, nil)
	for i := range n {
		lap.SetSym(i, i, 1)
	}
	for i, w := range g.weights {
		h, t := g.heads[i], g.tails[i]
		if h == t || degrees[h] == 0 || degrees[t] == 0 {
			continue
		}
		// symmetrize() emits both directions; write each pair once.
		if h < t {
			lap.SetSym(h, t, -w/math.Sqrt(degrees[h]*degrees[t]))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(lap, true); !ok {
		return nil
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })
	if len(order) < 3 {
		return nil
	}

	emb := make([][2]float64, n)
	for d := range 2 {
		col := order[d+1]
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := range n {
			v := vectors.At(i, col)
			lo, hi = min(lo, v), max(hi, v)
		}
		span := hi - lo
		for i := range n {
			v := vectors.At(i, col)
			if span > 0 {
				v = (v - lo) / span * initScale
			}
			emb[i][d] = v
		}
	}
	return emb
}

// layoutParams bundles one optimization pass.
type layoutParams struct {
	a, b         float64
	epochs       int
	learningRate float64
	negRate      float64
	// moveTails lets attraction pull tail points too. Off for transform, where
	// tails are the fixed fitted layout.
	moveTails bool
	// sameSet marks heads and tails as indexing the same embedding.
	sameSet bool
}

// optimize runs SGD with negative sampling over the edges of g, moving head
// rows toward their tails and away from random tails.
func optimize(head, tail [][2]float64, g graph, p layoutParams, rng *rand.Rand) {
	nEdges := len(g.weights)
	if nEdges == 0 || len(tail) == 0 || p.epochs <= 0 {
		return
	}

	maxW := g.maxWeight()
	if maxW == 0 {
		return
	}

	epochsPerSample := make([]float64, nEdges)
	for i, w := range g.weights {
		epochsPerSample[i] = -1
		if w >= maxW/float64(p.epochs) {
			epochsPerSample[i] = maxW / w
		}
	}

	negRate := max(p.negRate, 1)
	epochsPerNeg := make([]float64, nEdges)
	nextSample := make([]float64, nEdges)
	nextNeg := make([]float64, nEdges)
	for i, eps := range epochsPerSample {
		epochsPerNeg[i] = eps / negRate
		nextSample[i] = eps
		nextNeg[i] = epochsPerNeg[i]
	}

	a, b := p.a, p.b
	for epoch := range p.epochs {
		n := float64(epoch)
		alpha := p.learningRate * (1.0 - n/float64(p.epochs))

		for i := range nEdges {
			if epochsPerSample[i] < 0 || nextSample[i] > n {
				continue
			}
			j, k := g.heads[i], g.tails[i]
			cur := &head[j]
			other := &tail[k]

			distSq := sqDist(*cur, *other)
			gradCoeff := 0.0
			if distSq > 0 {
				gradCoeff = -2.0 * a * b * math.Pow(distSq, b-1.0)
				gradCoeff /= a*math.Pow(distSq, b) + 1.0
			}
			for d := range 2 {
				grad := clip(gradCoeff * (cur[d] - other[d]))
				cur[d] += grad * alpha
				if p.moveTails {
					other[d] -= grad * alpha
				}
			}
			nextSample[i] += epochsPerSample[i]

			nNeg := int((n - nextNeg[i]) / epochsPerNeg[i])
			for range max(nNeg, 0) {
				r := rng.IntN(len(tail))
				if p.sameSet && r == j {
					continue
				}
				neg := tail[r]
				distSq := sqDist(*cur, neg)
				gradCoeff := 0.0
				if distSq > 0 {
					gradCoeff = 2.0 * b
					gradCoeff /= (0.001 + distSq) * (a*math.Pow(distSq, b) + 1)
				}
				for d := range 2 {
					grad := gradientClip
					if gradCoeff > 0 {
						grad = clip(gradCoeff * (cur[d] - neg[d]))
					}
					cur[d] += grad * alpha
				}
			}
			nextNeg[i] += float64(max(nNeg, 0)) * epochsPerNeg[i]
		}
	}
}

func sqDist(a, b [2]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

func clip(v float64) float64 {
	return max(-gradientClip, min(gradientClip, v))
}
