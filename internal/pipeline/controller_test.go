package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/projector/internal/embed"
	"github.com/abelbrown/projector/internal/reduce"
	"github.com/abelbrown/projector/internal/sampling"
)

const testDim = 8

// testBackend embeds "s<N>" sentences into deterministic testDim-wide vectors.
type testBackend struct {
	err      error
	progress []float64
	onEmbed  func()
	calls    atomic.Int32
}

func (b *testBackend) Available() bool { return true }

func (b *testBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := b.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (b *testBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.calls.Add(1)
	if b.onEmbed != nil {
		b.onEmbed()
	}
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		n, _ := strconv.Atoi(strings.TrimPrefix(text, "s"))
		row := make([]float32, testDim)
		for j := range row {
			row[j] = float32((n+1)*(j+1)%7 + 1)
		}
		out[i] = row
	}
	return out, nil
}

func (b *testBackend) Load(_ context.Context, onProgress func(embed.LoadProgress)) error {
	for _, p := range b.progress {
		onProgress(embed.LoadProgress{Progress: p, File: "weights.bin"})
	}
	return nil
}

// testReducer records what the controller hands it.
type testReducer struct {
	fitSizes       []int
	transformSizes []int
	widths         []int
	fitErr         error
	onFit          func()
	panicOnFit     bool
}

func (r *testReducer) Fit(vectors [][]float32) ([]reduce.Point, error) {
	if r.panicOnFit {
		panic("reducer exploded")
	}
	r.fitSizes = append(r.fitSizes, len(vectors))
	r.record(vectors)
	if r.onFit != nil {
		r.onFit()
	}
	if r.fitErr != nil {
		return nil, r.fitErr
	}
	return points(len(vectors)), nil
}

func (r *testReducer) Transform(vectors [][]float32) ([]reduce.Point, error) {
	r.transformSizes = append(r.transformSizes, len(vectors))
	r.record(vectors)
	return points(len(vectors)), nil
}

func (r *testReducer) record(vectors [][]float32) {
	for _, v := range vectors {
		r.widths = append(r.widths, len(v))
	}
}

func points(n int) []reduce.Point {
	out := make([]reduce.Point, n)
	for i := range out {
		out[i] = reduce.Point{X: float64(i), Y: -float64(i)}
	}
	return out
}

func sentences(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("s%d", i)
	}
	return out
}

type harness struct {
	backend *testBackend
	reducer *testReducer
	models  *embed.Cache
	ctrl    *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{backend: &testBackend{}, reducer: &testReducer{}}
	h.models = embed.NewCache(func(embed.Key) (embed.BatchEmbedder, error) {
		return h.backend, nil
	})
	h.ctrl = New(Config{
		Models:     h.models,
		NewReducer: func(int) Reducer { return h.reducer },
		Sampler:    sampling.New(rand.New(rand.NewPCG(1, 2))),
		Yield:      func() {},
	})
	return h
}

func request(n int) Request {
	return Request{
		RunID:                  "run-1",
		ModelID:                "test-model",
		PrecisionMode:          "fp32",
		Sentences:              sentences(n),
		EmbeddingBatchSize:     7,
		UMAPFitSampleSize:      20,
		UMAPTransformBatchSize: 6,
	}
}

func always() bool { return true }

func progressValues(events []Event) []float64 {
	var out []float64
	for _, e := range events {
		if e.Type == EventProgress {
			out = append(out, e.Progress)
		}
	}
	return out
}

func TestRunCoversEveryIndexOnce(t *testing.T) {
	h := newHarness(t)
	var sink Collector

	err := h.ctrl.Run(context.Background(), always, request(50), &sink)
	require.NoError(t, err)

	seen := map[int]int{}
	for _, p := range sink.Points() {
		seen[p.SentenceIndex]++
	}
	require.Len(t, seen, 50)
	for i := range 50 {
		assert.Equal(t, 1, seen[i], "sentence %d", i)
	}

	assert.Equal(t, []int{20}, h.reducer.fitSizes)
	var transformed int
	for _, n := range h.reducer.transformSizes {
		assert.LessOrEqual(t, n, 6)
		transformed += n
	}
	assert.Equal(t, 30, transformed)

	done, ok := sink.Terminal()
	require.True(t, ok)
	assert.Equal(t, EventDone, done.Type)
	assert.Equal(t, 50, done.TotalCount)

	events := sink.Events()
	assert.Equal(t, done, events[len(events)-1], "done must be the last event")
	for _, e := range events {
		assert.Equal(t, "run-1", e.RunID)
	}
}

func TestRunPointsResetPrecedesAppends(t *testing.T) {
	h := newHarness(t)
	var sink Collector
	require.NoError(t, h.ctrl.Run(context.Background(), always, request(50), &sink))

	var resets int
	for _, e := range sink.Events() {
		switch e.Type {
		case EventPointsReset:
			resets++
			assert.Len(t, e.Points, 20)
		case EventPointsAppend:
			assert.Equal(t, 1, resets, "append before reset")
		}
	}
	assert.Equal(t, 1, resets)
}

func TestRunProgressIsMonotonic(t *testing.T) {
	h := newHarness(t)
	h.backend.progress = []float64{10, 60, 30, 100}
	var sink Collector
	require.NoError(t, h.ctrl.Run(context.Background(), always, request(50), &sink))

	values := progressValues(sink.Events())
	require.NotEmpty(t, values)
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1], "progress went backwards at %d", i)
	}
	assert.Equal(t, 0.0, values[0])
	assert.Equal(t, 1.0, values[len(values)-1])
	for _, v := range values {
		assert.True(t, v >= 0 && v <= 1)
	}
}

func TestRunStatusTexts(t *testing.T) {
	h := newHarness(t)
	h.backend.progress = []float64{0.5}
	var sink Collector
	req := request(10)
	req.EmbeddingBatchSize = 4
	req.UMAPFitSampleSize = 100
	require.NoError(t, h.ctrl.Run(context.Background(), always, req, &sink))

	var texts []string
	for _, e := range sink.Events() {
		if e.Type == EventProgress {
			texts = append(texts, e.StatusText)
		}
	}
	assert.Contains(t, texts, "Loading model test-model...")
	assert.Contains(t, texts, "Loading model file: weights.bin")
	assert.Contains(t, texts, "Embedding batch 1/3 (4/10)")
	assert.Contains(t, texts, "Embedding batch 3/3 (10/10)")
	assert.Contains(t, texts, "Running UMAP fit on random 10 points...")
	assert.Contains(t, texts, "UMAP fit completed (10 points).")
	assert.Equal(t, "Done. Embedded 10 sentences.", texts[len(texts)-1])
}

func TestRunSampleCoversEverything(t *testing.T) {
	h := newHarness(t)
	var sink Collector
	req := request(12)
	req.UMAPFitSampleSize = 1000
	require.NoError(t, h.ctrl.Run(context.Background(), always, req, &sink))

	assert.Equal(t, []int{12}, h.reducer.fitSizes)
	assert.Empty(t, h.reducer.transformSizes)
	for _, e := range sink.Events() {
		assert.NotEqual(t, EventPointsAppend, e.Type)
	}
	assert.Len(t, sink.Points(), 12)
}

func TestRunSingleSentence(t *testing.T) {
	h := newHarness(t)
	var sink Collector
	require.NoError(t, h.ctrl.Run(context.Background(), always, request(1), &sink))

	assert.Empty(t, h.reducer.fitSizes, "reducer must not run for one sentence")
	assert.Equal(t, []Point{{X: 0, Y: 0, SentenceIndex: 0}}, sink.Points())

	var sawEmbedding bool
	for _, e := range sink.Events() {
		if e.Type == EventProgress && e.StatusText == "Embedding 1 sentence..." {
			sawEmbedding = true
			assert.Equal(t, 0.4, e.Progress)
		}
	}
	assert.True(t, sawEmbedding)

	done, ok := sink.Terminal()
	require.True(t, ok)
	assert.Equal(t, 1, done.TotalCount)
	values := progressValues(sink.Events())
	assert.Equal(t, 1.0, values[len(values)-1])
}

func TestRunTargetDimClamp(t *testing.T) {
	tests := []struct {
		target int
		want   int
	}{
		{0, testDim},
		{3, 3},
		{testDim, testDim},
		{100, testDim},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.target), func(t *testing.T) {
			h := newHarness(t)
			var sink Collector
			req := request(30)
			req.TargetDim = tt.target
			require.NoError(t, h.ctrl.Run(context.Background(), always, req, &sink))

			for _, w := range h.reducer.widths {
				require.Equal(t, tt.want, w)
			}
			for _, e := range sink.Events() {
				if e.Type == EventProgress && e.UsedDim > 0 {
					assert.Equal(t, tt.want, e.UsedDim)
					assert.Equal(t, testDim, e.EmbeddingDim)
				}
			}
		})
	}
}

func TestRunReusesLoadedModel(t *testing.T) {
	h := newHarness(t)
	h.backend.progress = []float64{50, 100}

	var first, second Collector
	require.NoError(t, h.ctrl.Run(context.Background(), always, request(5), &first))
	h.reducer = &testReducer{}
	require.NoError(t, h.ctrl.Run(context.Background(), always, request(5), &second))
	assert.Equal(t, 1, h.models.Loads())

	for _, e := range second.Events() {
		assert.NotContains(t, e.StatusText, "Loading model file", "cached model reported load progress")
	}

	req := request(5)
	req.PrecisionMode = "q8"
	h.reducer = &testReducer{}
	require.NoError(t, h.ctrl.Run(context.Background(), always, req, &Collector{}))
	assert.Equal(t, 2, h.models.Loads())
}

func TestRunEmptyInput(t *testing.T) {
	h := newHarness(t)
	var sink Collector
	err := h.ctrl.Run(context.Background(), always, request(0), &sink)
	require.ErrorIs(t, err, ErrEmptyInput)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, "No sentences provided.", events[0].Message)
	assert.Zero(t, h.backend.calls.Load())
}

func TestRunInvalidRequest(t *testing.T) {
	h := newHarness(t)
	req := request(5)
	req.UMAPTransformBatchSize = 0
	err := h.ctrl.Run(context.Background(), always, req, &Collector{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRunExtractionError(t *testing.T) {
	h := newHarness(t)
	h.backend.err = errors.New("model exploded")
	var sink Collector

	err := h.ctrl.Run(context.Background(), always, request(10), &sink)
	var xerr *embed.ExtractionError
	require.ErrorAs(t, err, &xerr)

	last, ok := sink.Terminal()
	require.True(t, ok)
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, "model exploded", last.Message)
}

func TestRunReductionError(t *testing.T) {
	h := newHarness(t)
	h.reducer.fitErr = &reduce.ReductionError{Op: "fit", Err: errors.New("degenerate")}
	var sink Collector

	err := h.ctrl.Run(context.Background(), always, request(10), &sink)
	require.Error(t, err)
	last, ok := sink.Terminal()
	require.True(t, ok)
	assert.Equal(t, "umap fit failed: degenerate", last.Message)
}

func TestRunRecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.reducer.panicOnFit = true
	var sink Collector

	err := h.ctrl.Run(context.Background(), always, request(10), &sink)
	require.Error(t, err)
	last, ok := sink.Terminal()
	require.True(t, ok)
	assert.Equal(t, "reducer exploded", last.Message)
}

func TestRunSupersededAfterFit(t *testing.T) {
	h := newHarness(t)
	var live atomic.Bool
	live.Store(true)
	h.reducer.onFit = func() { live.Store(false) }
	var sink Collector

	err := h.ctrl.Run(context.Background(), live.Load, request(50), &sink)
	require.ErrorIs(t, err, ErrSuperseded)

	for _, e := range sink.Events() {
		assert.NotEqual(t, EventPointsReset, e.Type, "emitted points after supersession")
		assert.False(t, e.Terminal(), "superseded run emitted a terminal event")
	}
	assert.Empty(t, h.reducer.transformSizes)
}

func TestRunSupersededMidEmbedding(t *testing.T) {
	h := newHarness(t)
	var live atomic.Bool
	live.Store(true)
	h.backend.onEmbed = func() {
		if h.backend.calls.Load() == 2 {
			live.Store(false)
		}
	}
	var sink Collector

	err := h.ctrl.Run(context.Background(), live.Load, request(50), &sink)
	require.ErrorIs(t, err, ErrSuperseded)
	assert.EqualValues(t, 2, h.backend.calls.Load(), "no batch may start after supersession")
	_, ok := sink.Terminal()
	assert.False(t, ok)
}

func TestRunErrorWhileSupersededIsSilent(t *testing.T) {
	h := newHarness(t)
	var live atomic.Bool
	live.Store(true)
	h.backend.err = errors.New("late failure")
	h.backend.onEmbed = func() { live.Store(false) }
	var sink Collector

	err := h.ctrl.Run(context.Background(), live.Load, request(10), &sink)
	require.ErrorIs(t, err, ErrSuperseded)
	_, ok := sink.Terminal()
	assert.False(t, ok)
}

func TestRunWithRealReducer(t *testing.T) {
	backend := &testBackend{}
	models := embed.NewCache(func(embed.Key) (embed.BatchEmbedder, error) { return backend, nil })
	ctrl := New(Config{Models: models, Seed: 42, Yield: func() {}})

	var sink Collector
	req := request(40)
	req.UMAPFitSampleSize = 15
	req.UMAPTransformBatchSize = 10
	require.NoError(t, ctrl.Run(context.Background(), nil, req, &sink))

	pts := sink.Points()
	require.Len(t, pts, 40)
	for _, p := range pts {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
	}
}

func TestProgressEmptyRemainder(t *testing.T) {
	p := progress{total: 10, remainder: 0}
	assert.InDelta(t, 0.45, p.current(), 1e-9)

	p.embedded = 10
	p.fitDone = true
	assert.InDelta(t, 1.0, p.current(), 1e-9)
}

func TestProgressNeverDecreases(t *testing.T) {
	p := progress{total: 10, remainder: 5}
	assert.InDelta(t, 0.1, p.loading(0.5), 1e-9)
	assert.InDelta(t, 0.1, p.loading(0.2), 1e-9)
	assert.InDelta(t, 0.4, p.at(0.4), 1e-9)
	assert.InDelta(t, 0.4, p.current(), 1e-9)
}
