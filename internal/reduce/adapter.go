package reduce

import "fmt"

type state int

const (
	stateUnfit state = iota
	stateFit
)

// Adapter wraps a UMAP for a single run. It moves from unfit to fit exactly
// once; Transform is only valid afterwards.
type Adapter struct {
	umap  *UMAP
	state state
	dim   int
}

// NewAdapter returns an unfit adapter for a run of total sentences.
func NewAdapter(total int, seed uint64) *Adapter {
	cfg := DefaultConfig(total)
	cfg.Seed = seed
	return &Adapter{umap: NewUMAP(cfg)}
}

// NeighborCount reports the configured kNN size.
func (a *Adapter) NeighborCount() int { return a.umap.cfg.NNeighbors }

// Fitted reports whether Fit has completed.
func (a *Adapter) Fitted() bool { return a.state == stateFit }

// Fit learns the layout from sample vectors and returns their points in order.
// Calling Fit twice is a programming error and panics.
func (a *Adapter) Fit(vectors [][]float32) ([]Point, error) {
	if a.state == stateFit {
		panic("reduce: Fit called on an already fitted reducer")
	}
	data, dim, err := toFloat64(vectors, 0)
	if err != nil {
		return nil, &ReductionError{Op: "fit", Err: err}
	}
	points, err := a.umap.Fit(data)
	if err != nil {
		return nil, &ReductionError{Op: "fit", Err: err}
	}
	a.dim = dim
	a.state = stateFit
	return points, nil
}

// Transform places vectors into the fitted layout, preserving order.
// Calling Transform before Fit is a programming error and panics.
func (a *Adapter) Transform(vectors [][]float32) ([]Point, error) {
	if a.state != stateFit {
		panic("reduce: Transform called before Fit")
	}
	data, _, err := toFloat64(vectors, a.dim)
	if err != nil {
		return nil, &ReductionError{Op: "transform", Err: err}
	}
	points, err := a.umap.Transform(data)
	if err != nil {
		return nil, &ReductionError{Op: "transform", Err: fmt.Errorf("%d vectors: %w", len(vectors), err)}
	}
	return points, nil
}
