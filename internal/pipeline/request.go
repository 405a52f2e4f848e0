package pipeline

import (
	"fmt"

	"github.com/google/uuid"
)

// Request describes one embedding and projection run. Field names match the
// JSON wire format.
type Request struct {
	RunID                  string   `json:"runId"`
	ModelID                string   `json:"modelId"`
	PrecisionMode          string   `json:"precisionMode"`
	Sentences              []string `json:"sentences"`
	EmbeddingBatchSize     int      `json:"embeddingBatchSize"`
	TargetDim              int      `json:"targetDim"`
	UMAPFitSampleSize      int      `json:"umapFitSampleSize"`
	UMAPTransformBatchSize int      `json:"umapTransformBatchSize"`
}

// Defaults fills zero-valued request fields.
type Defaults struct {
	ModelID                string
	PrecisionMode          string
	EmbeddingBatchSize     int
	TargetDim              int
	UMAPFitSampleSize      int
	UMAPTransformBatchSize int
}

// Normalize returns a copy of r with a run ID and with zero fields taken from d.
// Negative values are left for Validate to reject.
func (r Request) Normalize(d Defaults) Request {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if r.ModelID == "" {
		r.ModelID = d.ModelID
	}
	if r.PrecisionMode == "" {
		r.PrecisionMode = d.PrecisionMode
	}
	if r.EmbeddingBatchSize == 0 {
		r.EmbeddingBatchSize = d.EmbeddingBatchSize
	}
	if r.TargetDim == 0 {
		r.TargetDim = d.TargetDim
	}
	if r.UMAPFitSampleSize == 0 {
		r.UMAPFitSampleSize = d.UMAPFitSampleSize
	}
	if r.UMAPTransformBatchSize == 0 {
		r.UMAPTransformBatchSize = d.UMAPTransformBatchSize
	}
	return r
}

// Validate checks the request. Empty input is reported as ErrEmptyInput,
// everything else wraps ErrInvalidRequest.
func (r Request) Validate() error {
	if len(r.Sentences) == 0 {
		return ErrEmptyInput
	}
	if r.ModelID == "" {
		return fmt.Errorf("%w: model id is required", ErrInvalidRequest)
	}
	if r.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("%w: embedding batch size must be positive", ErrInvalidRequest)
	}
	if r.UMAPTransformBatchSize <= 0 {
		return fmt.Errorf("%w: transform batch size must be positive", ErrInvalidRequest)
	}
	if r.UMAPFitSampleSize <= 0 {
		return fmt.Errorf("%w: fit sample size must be positive", ErrInvalidRequest)
	}
	return nil
}

// usedDim clamps the requested target dimensionality to [1, native].
// A non-positive target keeps the native width.
func usedDim(native, target int) int {
	if target <= 0 {
		target = native
	}
	return max(1, min(native, target))
}
