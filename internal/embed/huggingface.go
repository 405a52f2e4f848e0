package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const hfInferenceURL = "https://api-inference.huggingface.co"

// HFEmbedder runs the feature-extraction pipeline on the Hugging Face
// Inference API. Models without a pooling head return token-level matrices,
// which are mean-pooled here.
type HFEmbedder struct {
	modelID  string
	token    string
	endpoint string
	client   *http.Client
}

type hfRequest struct {
	Inputs  []string        `json:"inputs"`
	Options map[string]bool `json:"options,omitempty"`
}

// NewHFEmbedder creates an HFEmbedder for modelID. An empty endpoint uses the
// public inference API.
func NewHFEmbedder(modelID, token, endpoint string) *HFEmbedder {
	if endpoint == "" {
		endpoint = hfInferenceURL
	}
	return &HFEmbedder{
		modelID:  modelID,
		token:    token,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Available returns true if an access token is configured.
func (e *HFEmbedder) Available() bool {
	return e.token != ""
}

// Embed generates a vector embedding for a single text.
func (e *HFEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The server is asked to wait for a
// cold model instead of failing with 503.
func (e *HFEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(hfRequest{
		Inputs:  texts,
		Options: map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", e.endpoint, e.modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("embed: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed: request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("embed: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: huggingface returned status %d: %s", resp.StatusCode, string(body))
	}

	vecs, err := decodeFeatures(body)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed: huggingface returned %d embeddings for %d inputs", len(vecs), len(texts))
	}
	return vecs, nil
}

// decodeFeatures accepts either pooled output [batch][dim] or token-level
// output [batch][tokens][dim], mean-pooling the latter.
func decodeFeatures(body []byte) ([][]float32, error) {
	var pooled [][]float32
	if err := json.Unmarshal(body, &pooled); err == nil {
		return pooled, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("embed: failed to parse response: %w", err)
	}
	out := make([][]float32, len(tokens))
	for i, t := range tokens {
		if len(t) == 0 {
			return nil, fmt.Errorf("embed: empty token matrix for input %d", i)
		}
		out[i] = meanPool(t)
	}
	return out, nil
}
