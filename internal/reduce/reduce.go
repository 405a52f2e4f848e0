// Package reduce projects embedding vectors into 2-D with UMAP.
//
// A reducer is fit once on a sample of vectors and then transforms any number
// of further batches into the layout established by the fit. Adapter enforces
// that ordering; UMAP holds the math.
package reduce

import (
	"fmt"
	"math"
)

// Point is a 2-D coordinate produced by Fit or Transform.
type Point struct {
	X float64
	Y float64
}

const (
	minNeighbors = 2
	maxNeighbors = 15

	// DefaultEpochs is the number of SGD epochs used for fit. Transform runs a third.
	DefaultEpochs = 300
)

// NeighborCount derives the kNN graph size from the total number of sentences
// in a run: clamp(total-1, 2, 15).
func NeighborCount(total int) int {
	return max(minNeighbors, min(total-1, maxNeighbors))
}

// Config holds UMAP hyperparameters.
type Config struct {
	NNeighbors         int
	MinDist            float64
	Spread             float64
	NEpochs            int
	LearningRate       float64
	NegativeSampleRate float64
	// Seed makes layouts reproducible. Zero picks a random seed.
	Seed uint64
}

// DefaultConfig returns the fixed hyperparameters used for every run, with the
// neighbor count derived from the run size.
func DefaultConfig(total int) Config {
	return Config{
		NNeighbors:         NeighborCount(total),
		MinDist:            0.1,
		Spread:             1.0,
		NEpochs:            DefaultEpochs,
		LearningRate:       1.0,
		NegativeSampleRate: 5.0,
	}
}

// ReductionError reports a failed fit or transform.
type ReductionError struct {
	Op  string // "fit" or "transform"
	Err error
}

func (e *ReductionError) Error() string {
	return fmt.Sprintf("umap %s failed: %v", e.Op, e.Err)
}

func (e *ReductionError) Unwrap() error { return e.Err }

// toFloat64 converts vectors for the reducer, rejecting ragged or non-finite input.
// wantDim of zero accepts the width of the first row.
func toFloat64(vectors [][]float32, wantDim int) ([][]float64, int, error) {
	out := make([][]float64, len(vectors))
	dim := wantDim
	for i, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return nil, 0, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		row := make([]float64, dim)
		for j, x := range v {
			f := float64(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, 0, fmt.Errorf("vector %d has non-finite component at %d", i, j)
			}
			row[j] = f
		}
		out[i] = row
	}
	return out, dim, nil
}
