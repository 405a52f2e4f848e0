// Package embed turns sentences into normalized embedding vectors.
//
// Backends talk to an embedding service (Ollama, Jina, OpenAI, Hugging Face).
// An Extractor wraps one backend for a (model, precision) pair and guarantees
// L2-normalized, equal-width rows. Cache keeps a single Extractor resident
// across runs.
package embed

import (
	"context"
	"math"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Available returns true if the embedding service is accessible.
	Available() bool
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder extends Embedder with batch embedding support.
// When EmbedBatch returns nil error, the result slice must have the same length
// as the input texts slice, with result[i] corresponding to texts[i].
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LoadProgress is one model-load progress report.
type LoadProgress struct {
	// Progress is a fraction in [0,1]. Backends may report percentages in
	// (1,100]; Cache normalizes before forwarding.
	Progress float64
	// File names the artifact being fetched, if known.
	File string
}

// Loader is implemented by backends that must fetch or warm a model before
// the first EmbedBatch call.
type Loader interface {
	Load(ctx context.Context, onProgress func(LoadProgress)) error
}

// ExtractionError reports a failed model load or inference call.
// Its message is the underlying error's message, unchanged.
type ExtractionError struct {
	Op    string // "load" or "embed"
	Model string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return "embed: " + e.Op + " failed"
	}
	return e.Err.Error()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// normalizeProgress maps a backend progress value into [0,1].
// Values above 1 are treated as percentages.
func normalizeProgress(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return min(v, 1)
}

// l2Normalize scales v in place to unit length. Zero vectors are left as is.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) * inv)
	}
}

// meanPool averages token-level vectors into one sentence vector.
func meanPool(tokens [][]float32) []float32 {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]float32, len(tokens[0]))
	for _, tok := range tokens {
		for i := range out {
			if i < len(tok) {
				out[i] += tok[i]
			}
		}
	}
	n := float32(len(tokens))
	for i := range out {
		out[i] /= n
	}
	return out
}
