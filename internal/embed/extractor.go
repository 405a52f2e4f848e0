package embed

import (
	"context"
	"fmt"
)

// Key identifies a resident extractor.
type Key struct {
	Model     string
	Precision string
}

func (k Key) String() string {
	if k.Precision == "" {
		return k.Model
	}
	return k.Model + "@" + k.Precision
}

// Batch is the result of one Extract call.
type Batch struct {
	// Vectors holds one L2-normalized row per input text, in input order.
	Vectors [][]float32
	// NativeDim is the model's output width.
	NativeDim int
}

// Extractor embeds batches of sentences with a loaded backend.
type Extractor struct {
	key     Key
	backend BatchEmbedder
}

// NewExtractor wraps an already loaded backend.
func NewExtractor(key Key, backend BatchEmbedder) *Extractor {
	return &Extractor{key: key, backend: backend}
}

// Key returns the (model, precision) pair this extractor serves.
func (x *Extractor) Key() Key { return x.key }

// Embed returns mean-pooled, L2-normalized vectors for texts.
// Any backend failure or malformed output is an *ExtractionError.
func (x *Extractor) Embed(ctx context.Context, texts []string) (Batch, error) {
	if len(texts) == 0 {
		return Batch{}, nil
	}

	raw, err := x.backend.EmbedBatch(ctx, texts)
	if err != nil {
		return Batch{}, &ExtractionError{Op: "embed", Model: x.key.Model, Err: err}
	}
	if len(raw) != len(texts) {
		return Batch{}, x.fail(fmt.Errorf("embed: %s returned %d vectors for %d texts", x.key.Model, len(raw), len(texts)))
	}

	dim := len(raw[0])
	if dim == 0 {
		return Batch{}, x.fail(fmt.Errorf("embed: %s returned empty vectors", x.key.Model))
	}

	vectors := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != dim {
			return Batch{}, x.fail(fmt.Errorf("embed: %s returned vector %d with dimension %d, want %d", x.key.Model, i, len(v), dim))
		}
		row := make([]float32, dim)
		copy(row, v)
		l2Normalize(row)
		vectors[i] = row
	}
	return Batch{Vectors: vectors, NativeDim: dim}, nil
}

func (x *Extractor) fail(err error) error {
	return &ExtractionError{Op: "embed", Model: x.key.Model, Err: err}
}
