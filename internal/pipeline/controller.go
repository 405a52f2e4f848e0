// Package pipeline runs the streaming embed, fit, transform loop for one
// request and reports progress and points as events.
//
// A run embeds sentences in batches, routes each vector into either the
// reducer's fit sample or the transform queue, fits as soon as the sample is
// complete, and transforms the queue in fixed-size chunks. Between steps it
// checks whether a newer run has superseded it and, if so, stops without
// emitting anything further.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/abelbrown/projector/internal/embed"
	"github.com/abelbrown/projector/internal/otel"
	"github.com/abelbrown/projector/internal/reduce"
	"github.com/abelbrown/projector/internal/sampling"
)

// Reducer is a two-phase 2-D projection. Fit is called exactly once per run,
// Transform only after Fit.
type Reducer interface {
	Fit(vectors [][]float32) ([]reduce.Point, error)
	Transform(vectors [][]float32) ([]reduce.Point, error)
}

// ReducerFactory builds a fresh reducer for a run of total sentences.
type ReducerFactory func(total int) Reducer

// Checkpoint reports whether the run is still the current one.
type Checkpoint func() bool

// Config wires a Controller. Models is required.
type Config struct {
	Models     *embed.Cache
	NewReducer ReducerFactory
	Sampler    *sampling.Sampler
	Events     *otel.Logger
	// Yield releases the execution context after fit and after each transform
	// chunk. Defaults to runtime.Gosched.
	Yield func()
	// Seed for the default reducer. Zero picks a random seed per run.
	Seed uint64
}

// Controller executes runs. It holds no per-run state and may be reused, but
// runs are expected to execute one at a time.
type Controller struct {
	models     *embed.Cache
	newReducer ReducerFactory
	sampler    *sampling.Sampler
	events     *otel.Logger
	yield      func()
	now        func() time.Time
}

// New returns a Controller for cfg.
func New(cfg Config) *Controller {
	c := &Controller{
		models:     cfg.Models,
		newReducer: cfg.NewReducer,
		sampler:    cfg.Sampler,
		events:     cfg.Events,
		yield:      cfg.Yield,
		now:        time.Now,
	}
	if c.newReducer == nil {
		seed := cfg.Seed
		c.newReducer = func(total int) Reducer { return reduce.NewAdapter(total, seed) }
	}
	if c.sampler == nil {
		c.sampler = sampling.New(nil)
	}
	if c.yield == nil {
		c.yield = runtime.Gosched
	}
	return c
}

// Run executes req, emitting events to sink. It returns nil after a done
// event, ErrSuperseded if current reported false at a checkpoint (nothing is
// emitted past that point), or the error that was reported as the terminal
// error event.
func (c *Controller) Run(ctx context.Context, current Checkpoint, req Request, sink Sink) (err error) {
	if current == nil {
		current = func() bool { return true }
	}
	r := &run{
		c:       c,
		ctx:     ctx,
		req:     req,
		sink:    sink,
		current: current,
		start:   c.now(),
		prog:    progress{total: len(req.Sentences)},
	}

	c.events.Emit(otel.Event{
		Level: otel.LevelInfo, Kind: otel.KindRunStart, Comp: "pipeline",
		RunID: req.RunID, Model: req.ModelID, Count: len(req.Sentences),
	})

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
		err = r.finish(err)
	}()
	return r.execute()
}

// vecIdx is a truncated vector tagged with its sentence index.
type vecIdx struct {
	index  int
	vector []float32
}

// run is the state of one execution.
type run struct {
	c       *Controller
	ctx     context.Context
	req     Request
	sink    Sink
	current Checkpoint
	start   time.Time

	prog      progress
	nativeDim int
	usedDim   int
	reducer   Reducer
	fitted    bool
}

// check is a cancellation checkpoint.
func (r *run) check(where string) error {
	r.c.events.Trace(otel.KindCheckpoint, "pipeline", r.req.RunID, where)
	if !r.current() {
		return ErrSuperseded
	}
	return nil
}

// emit delivers an event unless the run has been superseded.
func (r *run) emit(e Event) error {
	if !r.current() {
		return ErrSuperseded
	}
	e.RunID = r.req.RunID
	r.sink.Emit(e)
	return nil
}

func (r *run) emitProgress(stage Stage, text string, value float64) error {
	return r.emit(Event{
		Type:         EventProgress,
		Stage:        stage,
		StatusText:   text,
		Progress:     value,
		EmbeddingDim: r.nativeDim,
		UsedDim:      r.usedDim,
	})
}

func (r *run) elapsedMs() float64 {
	return float64(r.c.now().Sub(r.start)) / float64(time.Millisecond)
}

// finish turns the outcome of execute into the terminal event, if any.
func (r *run) finish(err error) error {
	ev := otel.Event{Comp: "pipeline", RunID: r.req.RunID, Model: r.req.ModelID,
		Count: len(r.req.Sentences), Dur: r.c.now().Sub(r.start)}

	switch {
	case err == nil:
		ev.Level, ev.Kind = otel.LevelInfo, otel.KindRunDone
		r.c.events.Emit(ev)
		return nil

	case errors.Is(err, ErrSuperseded):
		ev.Level, ev.Kind = otel.LevelInfo, otel.KindRunCancel
		r.c.events.Emit(ev)
		return ErrSuperseded
	}

	// A failure after supersession stays silent.
	if emitErr := r.emit(Event{Type: EventError, Message: errorMessage(err)}); emitErr != nil {
		ev.Level, ev.Kind, ev.Err = otel.LevelInfo, otel.KindRunCancel, err.Error()
		r.c.events.Emit(ev)
		return ErrSuperseded
	}
	ev.Level, ev.Kind, ev.Err = otel.LevelError, otel.KindRunError, errorMessage(err)
	r.c.events.Emit(ev)
	return err
}

func (r *run) execute() error {
	if err := r.req.Validate(); err != nil {
		return err
	}

	ext, err := r.loadModel()
	if err != nil {
		return err
	}

	if len(r.req.Sentences) == 1 {
		return r.single(ext)
	}
	return r.general(ext)
}

func (r *run) loadModel() (*embed.Extractor, error) {
	model := r.req.ModelID
	if err := r.emitProgress(StageLoadingModel, fmt.Sprintf("Loading model %s...", model), r.prog.at(0)); err != nil {
		return nil, err
	}

	started := r.c.now()
	key := embed.Key{Model: model, Precision: r.req.PrecisionMode}
	ext, cached, err := r.c.models.Load(r.ctx, key, func(p embed.LoadProgress) {
		text := "Loading model assets..."
		if p.File != "" {
			text = "Loading model file: " + p.File
		}
		// Supersession is picked up by the checkpoint after Load returns.
		_ = r.emitProgress(StageLoadingModel, text, r.prog.loading(p.Progress))
	})
	if err != nil {
		return nil, err
	}
	if err := r.check("after model load"); err != nil {
		return nil, err
	}

	kind := otel.KindModelLoad
	if cached {
		kind = otel.KindModelCached
	}
	r.c.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: kind, Comp: "pipeline",
		RunID: r.req.RunID, Model: key.String(), Dur: r.c.now().Sub(started)})

	if err := r.emitProgress(StageLoadingModel, fmt.Sprintf("Model %s ready.", model), r.prog.loading(1)); err != nil {
		return nil, err
	}
	return ext, nil
}

// embedBatch embeds sentences[start:end] and truncates every row to usedDim.
func (r *run) embedBatch(ext *embed.Extractor, start, end int) ([][]float32, error) {
	if err := r.check("before embedding batch"); err != nil {
		return nil, err
	}

	started := r.c.now()
	batch, err := ext.Embed(r.ctx, r.req.Sentences[start:end])
	if err != nil {
		return nil, err
	}
	if err := r.check("after embedding batch"); err != nil {
		return nil, err
	}

	if r.nativeDim == 0 {
		r.nativeDim = batch.NativeDim
		r.usedDim = usedDim(batch.NativeDim, r.req.TargetDim)
	} else if batch.NativeDim != r.nativeDim {
		return nil, &embed.ExtractionError{Op: "embed", Model: r.req.ModelID,
			Err: fmt.Errorf("embedding dimension changed from %d to %d", r.nativeDim, batch.NativeDim)}
	}

	rows := make([][]float32, len(batch.Vectors))
	for i, v := range batch.Vectors {
		rows[i] = v[:r.usedDim:r.usedDim]
	}

	r.c.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindEmbedBatch, Comp: "pipeline",
		RunID: r.req.RunID, Count: len(rows), Dims: r.usedDim, Dur: r.c.now().Sub(started)})
	return rows, nil
}

// single handles a one-sentence run: no neighbors exist, so the point sits at
// the origin.
func (r *run) single(ext *embed.Extractor) error {
	if err := r.emitProgress(StageEmbedding, "Embedding 1 sentence...", r.prog.at(0.4)); err != nil {
		return err
	}
	if _, err := r.embedBatch(ext, 0, 1); err != nil {
		return err
	}
	r.prog.embedded = 1

	if err := r.emit(Event{Type: EventPointsReset, Points: []Point{{X: 0, Y: 0, SentenceIndex: 0}}}); err != nil {
		return err
	}
	if err := r.emitProgress(StageDone, "Done. Embedded 1 sentence.", r.prog.at(1)); err != nil {
		return err
	}
	return r.emit(Event{Type: EventDone, TotalCount: 1, ElapsedMs: r.elapsedMs()})
}

func (r *run) general(ext *embed.Extractor) error {
	total := len(r.req.Sentences)
	batchSize := r.req.EmbeddingBatchSize

	r.reducer = r.c.newReducer(total)
	mask := r.c.sampler.Mask(total, r.req.UMAPFitSampleSize)
	sampleTarget := min(r.req.UMAPFitSampleSize, total)
	r.prog.remainder = total - sampleTarget

	sample := make([]vecIdx, 0, sampleTarget)
	var queue []vecIdx

	totalBatches := (total + batchSize - 1) / batchSize
	for b := range totalBatches {
		start := b * batchSize
		end := min(start+batchSize, total)

		rows, err := r.embedBatch(ext, start, end)
		if err != nil {
			return err
		}
		for i, v := range rows {
			idx := start + i
			if mask[idx] {
				sample = append(sample, vecIdx{index: idx, vector: v})
			} else {
				queue = append(queue, vecIdx{index: idx, vector: v})
			}
		}

		r.prog.embedded = end
		text := fmt.Sprintf("Embedding batch %d/%d (%d/%d)", b+1, totalBatches, end, total)
		if err := r.emitProgress(StageEmbedding, text, r.prog.current()); err != nil {
			return err
		}

		if !r.fitted && len(sample) == sampleTarget {
			if err := r.fit(sample); err != nil {
				return err
			}
			sample = nil
		}
		if r.fitted {
			if queue, err = r.drain(queue, false); err != nil {
				return err
			}
		}
	}

	if !r.fitted {
		if err := r.fit(sample); err != nil {
			return err
		}
	}
	if _, err := r.drain(queue, true); err != nil {
		return err
	}

	if err := r.check("before done"); err != nil {
		return err
	}
	text := fmt.Sprintf("Done. Embedded %d sentences.", total)
	if err := r.emitProgress(StageDone, text, r.prog.at(1)); err != nil {
		return err
	}
	return r.emit(Event{Type: EventDone, TotalCount: total, ElapsedMs: r.elapsedMs()})
}

func (r *run) fit(sample []vecIdx) error {
	n := len(sample)
	if err := r.emitProgress(StageUMAPFit, fmt.Sprintf("Running UMAP fit on random %d points...", n), r.prog.current()); err != nil {
		return err
	}

	started := r.c.now()
	points, err := r.reducer.Fit(vectorsOf(sample))
	if err != nil {
		return err
	}
	if err := r.check("after fit"); err != nil {
		return err
	}
	if len(points) != n {
		return &reduce.ReductionError{Op: "fit", Err: fmt.Errorf("got %d points for %d vectors", len(points), n)}
	}
	r.fitted = true
	r.prog.fitDone = true

	r.c.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindUMAPFit, Comp: "pipeline",
		RunID: r.req.RunID, Count: n, Dims: r.usedDim, Dur: r.c.now().Sub(started)})

	if err := r.emit(Event{Type: EventPointsReset, Points: tag(points, sample)}); err != nil {
		return err
	}
	if err := r.emitProgress(StageUMAPFit, fmt.Sprintf("UMAP fit completed (%d points).", n), r.prog.current()); err != nil {
		return err
	}
	return r.pause("after fit")
}

// drain transforms the queue in chunks of the transform batch size. Unless
// final, only full chunks are taken and the rest is returned for later.
func (r *run) drain(queue []vecIdx, final bool) ([]vecIdx, error) {
	size := r.req.UMAPTransformBatchSize
	for len(queue) >= size || (final && len(queue) > 0) {
		n := min(size, len(queue))
		chunk := queue[:n]

		text := fmt.Sprintf("UMAP transform (%d/%d)", r.prog.transformed, r.prog.remainder)
		if err := r.emitProgress(StageUMAPTransform, text, r.prog.current()); err != nil {
			return nil, err
		}

		started := r.c.now()
		points, err := r.reducer.Transform(vectorsOf(chunk))
		if err != nil {
			return nil, err
		}
		if err := r.check("after transform"); err != nil {
			return nil, err
		}
		if len(points) != n {
			return nil, &reduce.ReductionError{Op: "transform", Err: fmt.Errorf("got %d points for %d vectors", len(points), n)}
		}

		r.prog.transformed += n
		r.c.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindUMAPTransform, Comp: "pipeline",
			RunID: r.req.RunID, Count: n, Dur: r.c.now().Sub(started)})

		if err := r.emit(Event{Type: EventPointsAppend, Points: tag(points, chunk)}); err != nil {
			return nil, err
		}
		text = fmt.Sprintf("UMAP transform (%d/%d)", r.prog.transformed, r.prog.remainder)
		if err := r.emitProgress(StageUMAPTransform, text, r.prog.current()); err != nil {
			return nil, err
		}
		if err := r.pause("after transform chunk"); err != nil {
			return nil, err
		}

		queue = queue[n:]
	}
	// Compact so drained vectors can be collected.
	return append([]vecIdx(nil), queue...), nil
}

// pause yields the execution context, then checks for supersession.
func (r *run) pause(where string) error {
	r.c.events.Trace(otel.KindYield, "pipeline", r.req.RunID, where)
	r.c.yield()
	return r.check(where)
}

func vectorsOf(items []vecIdx) [][]float32 {
	out := make([][]float32, len(items))
	for i, it := range items {
		out[i] = it.vector
	}
	return out
}

// tag attaches sentence indices to reducer output, pairing by position.
func tag(points []reduce.Point, items []vecIdx) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{X: p.X, Y: p.Y, SentenceIndex: items[i].index}
	}
	return out
}
