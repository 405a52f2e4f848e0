package embed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder generates embeddings via local Ollama server.
type OllamaEmbedder struct {
	endpoint string       // e.g., "http://localhost:11434"
	model    string       // e.g., "nomic-embed-text"
	client   *http.Client // HTTP client for embed requests
	// pullClient has no timeout; pulls are bounded by ctx only.
	pullClient *http.Client
}

// ollamaTagsResponse represents the response from GET /api/tags.
type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

// ollamaModel represents a model in the tags response.
type ollamaModel struct {
	Name string `json:"name"`
}

// ollamaEmbedRequest represents the request body for POST /api/embed.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse represents the response from POST /api/embed.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ollamaPullRequest represents the request body for POST /api/pull.
type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// ollamaPullStatus is one line of the streamed /api/pull response.
type ollamaPullStatus struct {
	Status    string `json:"status"`
	Digest    string `json:"digest"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

// NewOllamaEmbedder creates a new OllamaEmbedder with the given endpoint and model.
func NewOllamaEmbedder(endpoint, model string) *OllamaEmbedder {
	return &OllamaEmbedder{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		pullClient: &http.Client{},
	}
}

// Available returns true if the Ollama server is accessible and the model exists.
// Uses a 3-second timeout for the availability check.
func (e *OllamaEmbedder) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ok, err := e.hasModel(ctx)
	return err == nil && ok
}

// hasModel reports whether the configured model is already pulled.
func (e *OllamaEmbedder) hasModel(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("embed: failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("embed: ollama unreachable at %s: %w", e.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("embed: ollama returned status %d for /api/tags", resp.StatusCode)
	}

	var tagsResp ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return false, fmt.Errorf("embed: failed to parse tags: %w", err)
	}

	// "mxbai-embed-large" should match "mxbai-embed-large:latest"
	for _, model := range tagsResp.Models {
		if model.Name == e.model || model.Name == e.model+":latest" {
			return true, nil
		}
	}
	return false, nil
}

// Load pulls the model if the server does not have it yet, reporting download
// progress as a fraction of all layer bytes seen so far. A model that is
// already present reports a single completed step.
func (e *OllamaEmbedder) Load(ctx context.Context, onProgress func(LoadProgress)) error {
	if onProgress == nil {
		onProgress = func(LoadProgress) {}
	}

	present, err := e.hasModel(ctx)
	if err != nil {
		return err
	}
	if present {
		onProgress(LoadProgress{Progress: 1})
		return nil
	}

	jsonBody, err := json.Marshal(ollamaPullRequest{Model: e.model, Stream: true})
	if err != nil {
		return fmt.Errorf("embed: failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/pull", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("embed: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.pullClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("embed: pull cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("embed: pull failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("embed: ollama returned status %d pulling %s: %s", resp.StatusCode, e.model, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	succeeded := false
	var layers pullLayers
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var st ollamaPullStatus
		if err := json.Unmarshal(line, &st); err != nil {
			return fmt.Errorf("embed: failed to parse pull status: %w", err)
		}
		if st.Error != "" {
			return fmt.Errorf("embed: pull %s: %s", e.model, st.Error)
		}
		if st.Status == "success" {
			succeeded = true
			onProgress(LoadProgress{Progress: 1})
			continue
		}
		if st.Total > 0 {
			onProgress(LoadProgress{Progress: layers.update(st), File: st.Digest})
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("embed: reading pull stream: %w", err)
	}
	if !succeeded {
		return errors.New("embed: pull " + e.model + " ended without success")
	}
	return nil
}

// pullLayers accumulates per-digest byte counts from a pull stream. Each
// digest restarts at zero, so progress is the sum over every digest seen.
type pullLayers struct {
	order     []string
	total     map[string]int64
	completed map[string]int64
}

// update records st and returns overall completed/total bytes.
func (l *pullLayers) update(st ollamaPullStatus) float64 {
	if l.total == nil {
		l.total = map[string]int64{}
		l.completed = map[string]int64{}
	}
	key := st.Digest
	if _, ok := l.total[key]; !ok {
		l.order = append(l.order, key)
	}
	l.total[key] = st.Total
	l.completed[key] = max(l.completed[key], min(st.Completed, st.Total))

	var done, total int64
	for _, k := range l.order {
		done += l.completed[k]
		total += l.total[k]
	}
	return float64(done) / float64(total)
}

// Embed generates a vector embedding for the given text using Ollama.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in a single /api/embed call.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embed: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("embed: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed: request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("embed: failed to parse response: %w", err)
	}

	if len(embedResp.Embeddings) == 0 {
		return nil, fmt.Errorf("embed: no embeddings returned")
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: ollama returned %d embeddings for %d inputs", len(embedResp.Embeddings), len(texts))
	}

	return embedResp.Embeddings, nil
}
