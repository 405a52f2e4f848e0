package reduce

import (
	"math"
	"sort"
)

// graph is a sparse weighted edge list in coordinate form.
// Heads index the points being laid out, tails the points they attract to.
type graph struct {
	heads   []int
	tails   []int
	weights []float64
}

func (g *graph) add(head, tail int, w float64) {
	g.heads = append(g.heads, head)
	g.tails = append(g.tails, tail)
	g.weights = append(g.weights, w)
}

func (g *graph) maxWeight() float64 {
	m := 0.0
	for _, w := range g.weights {
		m = max(m, w)
	}
	return m
}

// neighbors holds, per query row, the k nearest reference rows by ascending distance.
type neighbors struct {
	indices [][]int
	dists   [][]float64
}

// nearest finds the k nearest rows of ref for every row of query by brute force.
// With skipSelf, query and ref are the same set and row i never neighbors itself.
func nearest(query, ref [][]float64, k int, skipSelf bool) neighbors {
	nn := neighbors{
		indices: make([][]int, len(query)),
		dists:   make([][]float64, len(query)),
	}

	for i, q := range query {
		idx := make([]int, 0, k)
		dst := make([]float64, 0, k)
		for j, r := range ref {
			if skipSelf && i == j {
				continue
			}
			d := euclidean(q, r)
			if len(idx) == k && d >= dst[k-1] {
				continue
			}
			// insertion into the sorted top-k
			pos := sort.SearchFloat64s(dst, d)
			for pos < len(dst) && dst[pos] == d {
				pos++
			}
			if len(idx) < k {
				idx = append(idx, 0)
				dst = append(dst, 0)
			}
			copy(idx[pos+1:], idx[pos:len(idx)-1])
			copy(dst[pos+1:], dst[pos:len(dst)-1])
			idx[pos] = j
			dst[pos] = d
		}
		nn.indices[i] = idx
		nn.dists[i] = dst
	}
	return nn
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// smoothDistances finds per-row rho (distance to the nearest non-identical
// neighbor) and sigma such that the row's memberships sum to log2(k).
func smoothDistances(dists [][]float64, k float64) (sigmas, rhos []float64) {
	const (
		nIter         = 64
		tolerance     = 1e-5
		minKDistScale = 1e-3
	)

	n := len(dists)
	sigmas = make([]float64, n)
	rhos = make([]float64, n)
	target := math.Log2(k)

	for i, row := range dists {
		for _, d := range row {
			if d > 0 {
				rhos[i] = d
				break
			}
		}

		lo, hi, mid := 0.0, math.Inf(1), 1.0
		for range nIter {
			psum := 0.0
			for _, d := range row {
				if gap := d - rhos[i]; gap > 0 {
					psum += math.Exp(-gap / mid)
				} else {
					psum += 1.0
				}
			}
			if math.Abs(psum-target) < tolerance {
				break
			}
			if psum > target {
				hi = mid
				mid = (lo + hi) / 2
			} else {
				lo = mid
				if math.IsInf(hi, 1) {
					mid *= 2
				} else {
					mid = (lo + hi) / 2
				}
			}
		}
		sigmas[i] = mid

		if len(row) > 0 {
			var mean float64
			for _, d := range row {
				mean += d
			}
			mean /= float64(len(row))
			sigmas[i] = max(sigmas[i], minKDistScale*mean)
		}
	}
	return sigmas, rhos
}

// memberships turns kNN distances into directed fuzzy edge weights.
func memberships(nn neighbors, sigmas, rhos []float64) graph {
	var g graph
	for i := range nn.indices {
		for j, tail := range nn.indices[i] {
			gap := nn.dists[i][j] - rhos[i]
			w := 1.0
			if gap > 0 && sigmas[i] > 0 {
				w = math.Exp(-gap / sigmas[i])
			}
			g.add(i, tail, w)
		}
	}
	return g
}

// symmetrize applies the fuzzy set union w + wT - w*wT so the graph is undirected.
// Edges come out sorted by (head, tail) so layouts are reproducible for a seed.
func symmetrize(g graph) graph {
	type edge struct{ h, t int }

	directed := make(map[edge]float64, len(g.weights))
	for i, w := range g.weights {
		directed[edge{g.heads[i], g.tails[i]}] = w
	}

	union := make(map[edge]float64, 2*len(directed))
	for e, w := range directed {
		wt := directed[edge{e.t, e.h}]
		v := w + wt - w*wt
		if v > 0 {
			union[e] = v
			union[edge{e.t, e.h}] = v
		}
	}

	edges := make([]edge, 0, len(union))
	for e := range union {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].h != edges[j].h {
			return edges[i].h < edges[j].h
		}
		return edges[i].t < edges[j].t
	})

	var out graph
	for _, e := range edges {
		out.add(e.h, e.t, union[e])
	}
	return out
}

// normalizeRows scales each head's outgoing weights to sum to one.
func normalizeRows(g graph, nHeads int) graph {
	sums := make([]float64, nHeads)
	for i, w := range g.weights {
		sums[g.heads[i]] += w
	}
	out := graph{
		heads:   append([]int(nil), g.heads...),
		tails:   append([]int(nil), g.tails...),
		weights: make([]float64, len(g.weights)),
	}
	for i, w := range g.weights {
		if s := sums[g.heads[i]]; s > 0 {
			out.weights[i] = w / s
		}
	}
	return out
}
