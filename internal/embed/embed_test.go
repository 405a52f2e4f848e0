package embed

import (
	"context"
	"errors"
	"math"
	"testing"
)

// fakeBackend is an in-memory BatchEmbedder with optional load behavior.
type fakeBackend struct {
	vecs     func(texts []string) [][]float32
	err      error
	loadErr  error
	progress []float64
	closed   bool
}

func (f *fakeBackend) Available() bool { return true }

func (f *fakeBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vecs(texts), nil
}

func (f *fakeBackend) Load(_ context.Context, onProgress func(LoadProgress)) error {
	for _, p := range f.progress {
		onProgress(LoadProgress{Progress: p, File: "model.onnx"})
	}
	return f.loadErr
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func constantVecs(v ...float32) func([]string) [][]float32 {
	return func(texts []string) [][]float32 {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = append([]float32(nil), v...)
		}
		return out
	}
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestNormalizeProgress(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{50, 0.5},
		{100, 1},
		{250, 1},
		{-3, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := normalizeProgress(tt.in); got != tt.want {
			t.Errorf("normalizeProgress(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	l2Normalize(v)
	if math.Abs(norm(v)-1) > 1e-6 {
		t.Errorf("norm after normalize = %v, want 1", norm(v))
	}

	zero := []float32{0, 0, 0}
	l2Normalize(zero)
	for _, x := range zero {
		if x != 0 {
			t.Errorf("zero vector changed: %v", zero)
		}
	}
}

func TestMeanPool(t *testing.T) {
	got := meanPool([][]float32{{1, 2}, {3, 4}, {5, 6}})
	want := []float32{3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("meanPool()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if meanPool(nil) != nil {
		t.Error("meanPool(nil) should be nil")
	}
}

func TestExtractorNormalizes(t *testing.T) {
	x := NewExtractor(Key{Model: "m"}, &fakeBackend{vecs: constantVecs(1, 2, 2)})
	batch, err := x.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if batch.NativeDim != 3 {
		t.Errorf("NativeDim = %d, want 3", batch.NativeDim)
	}
	if len(batch.Vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(batch.Vectors))
	}
	for i, v := range batch.Vectors {
		if math.Abs(norm(v)-1) > 1e-6 {
			t.Errorf("vector %d norm = %v, want 1", i, norm(v))
		}
	}
}

func TestExtractorErrors(t *testing.T) {
	backendErr := errors.New("inference exploded")
	tests := []struct {
		name    string
		backend *fakeBackend
		wantMsg string
	}{
		{
			name:    "backend failure is passed through verbatim",
			backend: &fakeBackend{err: backendErr},
			wantMsg: "inference exploded",
		},
		{
			name: "row count mismatch",
			backend: &fakeBackend{vecs: func([]string) [][]float32 {
				return [][]float32{{1}}
			}},
		},
		{
			name: "ragged rows",
			backend: &fakeBackend{vecs: func([]string) [][]float32 {
				return [][]float32{{1, 2}, {1}}
			}},
		},
		{
			name: "empty rows",
			backend: &fakeBackend{vecs: func([]string) [][]float32 {
				return [][]float32{{}, {}}
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewExtractor(Key{Model: "m"}, tt.backend)
			_, err := x.Embed(context.Background(), []string{"a", "b"})
			var xerr *ExtractionError
			if !errors.As(err, &xerr) {
				t.Fatalf("Embed() error = %v, want *ExtractionError", err)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCacheReusesResidentExtractor(t *testing.T) {
	builds := 0
	cache := NewCache(func(key Key) (BatchEmbedder, error) {
		builds++
		return &fakeBackend{vecs: constantVecs(1, 0), progress: []float64{10, 55.5, 100}}, nil
	})

	var reports []LoadProgress
	key := Key{Model: "minilm", Precision: "fp32"}
	first, cached, err := cache.Load(context.Background(), key, func(p LoadProgress) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cached {
		t.Error("first Load() reported cached")
	}
	if len(reports) != 3 {
		t.Fatalf("got %d progress reports, want 3", len(reports))
	}
	wantFractions := []float64{0.1, 0.555, 1}
	for i, p := range reports {
		if math.Abs(p.Progress-wantFractions[i]) > 1e-9 {
			t.Errorf("report %d progress = %v, want %v", i, p.Progress, wantFractions[i])
		}
	}

	reports = nil
	second, cached, err := cache.Load(context.Background(), key, func(p LoadProgress) {
		reports = append(reports, p)
	})
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if !cached || second != first {
		t.Error("second Load() did not reuse the resident extractor")
	}
	if len(reports) != 0 {
		t.Errorf("cached Load() invoked progress %d times", len(reports))
	}
	if builds != 1 || cache.Loads() != 1 {
		t.Errorf("builds = %d, loads = %d, want 1 and 1", builds, cache.Loads())
	}
}

func TestCacheEvictsOnKeyChange(t *testing.T) {
	var backends []*fakeBackend
	cache := NewCache(func(key Key) (BatchEmbedder, error) {
		b := &fakeBackend{vecs: constantVecs(1)}
		backends = append(backends, b)
		return b, nil
	})

	ctx := context.Background()
	if _, _, err := cache.Load(ctx, Key{Model: "a", Precision: "fp32"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := cache.Load(ctx, Key{Model: "a", Precision: "q8"}, nil); err != nil {
		t.Fatal(err)
	}

	if len(backends) != 2 {
		t.Fatalf("built %d backends, want 2", len(backends))
	}
	if !backends[0].closed {
		t.Error("evicted backend was not closed")
	}
	if key, ok := cache.Resident(); !ok || key.Precision != "q8" {
		t.Errorf("Resident() = %v, %v", key, ok)
	}
}

func TestCacheFailedLoadLeavesCacheEmpty(t *testing.T) {
	fail := true
	cache := NewCache(func(key Key) (BatchEmbedder, error) {
		b := &fakeBackend{vecs: constantVecs(1)}
		if fail {
			b.loadErr = errors.New("download interrupted")
		}
		return b, nil
	})

	_, _, err := cache.Load(context.Background(), Key{Model: "m"}, nil)
	var xerr *ExtractionError
	if !errors.As(err, &xerr) || xerr.Op != "load" {
		t.Fatalf("Load() error = %v, want load ExtractionError", err)
	}
	if err.Error() != "download interrupted" {
		t.Errorf("Error() = %q", err.Error())
	}
	if _, ok := cache.Resident(); ok {
		t.Error("failed load left an extractor resident")
	}

	fail = false
	if _, cached, err := cache.Load(context.Background(), Key{Model: "m"}, nil); err != nil || cached {
		t.Errorf("retry Load() = cached %v, err %v", cached, err)
	}
}

func TestCacheFactoryError(t *testing.T) {
	cache := NewCache(func(Key) (BatchEmbedder, error) {
		return nil, errors.New("no such provider")
	})
	_, _, err := cache.Load(context.Background(), Key{Model: "m"}, nil)
	var xerr *ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("Load() error = %v, want *ExtractionError", err)
	}
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		key      Key
		wantErr  bool
		buildErr bool
	}{
		{name: "ollama default", opts: Options{}, key: Key{Model: "nomic-embed-text"}},
		{name: "jina", opts: Options{Provider: "jina", APIKey: "k"}, key: Key{Model: "jina-embeddings-v3"}},
		{name: "jina without key", opts: Options{Provider: "jina"}, key: Key{Model: "x"}, buildErr: true},
		{name: "openai", opts: Options{Provider: "openai", APIKey: "k"}, key: Key{Model: "text-embedding-3-small"}},
		{name: "huggingface", opts: Options{Provider: "hf", APIKey: "k"}, key: Key{Model: "sentence-transformers/all-MiniLM-L6-v2"}},
		{name: "unknown", opts: Options{Provider: "word2vec"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := NewFactory(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFactory() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			_, err = factory(tt.key)
			if (err != nil) != tt.buildErr {
				t.Errorf("factory() error = %v, buildErr %v", err, tt.buildErr)
			}
		})
	}
}
