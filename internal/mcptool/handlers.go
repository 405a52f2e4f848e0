package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/abelbrown/projector/internal/coord"
	"github.com/abelbrown/projector/internal/corpus"
	"github.com/abelbrown/projector/internal/logging"
	"github.com/abelbrown/projector/internal/pipeline"
)

// Handlers contains the handler functions for the MCP tools
type Handlers struct {
	runs     Submitter
	corpora  CorpusSource
	defaults pipeline.Defaults
}

// NewHandlers creates Handlers without registering them.
func NewHandlers(runs Submitter, corpora CorpusSource, defaults pipeline.Defaults) *Handlers {
	return &Handlers{runs: runs, corpora: corpora, defaults: defaults}
}

// projection is the JSON body of a successful project_sentences call.
type projection struct {
	RunID        string           `json:"runId"`
	TotalCount   int              `json:"totalCount"`
	ElapsedMs    float64          `json:"elapsedMs"`
	EmbeddingDim int              `json:"embeddingDim"`
	UsedDim      int              `json:"usedDim"`
	Points       []pipeline.Point `json:"points"`
}

// ProjectSentences handles the project_sentences tool
func (h *Handlers) ProjectSentences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sentences, errResult := h.sentences(request)
	if errResult != nil {
		return errResult, nil
	}

	req := pipeline.Request{
		ModelID:           request.GetString("model", ""),
		Sentences:         sentences,
		TargetDim:         request.GetInt("target_dim", 0),
		UMAPFitSampleSize: request.GetInt("sample_size", 0),
	}.Normalize(h.defaults)

	sink := &pipeline.Collector{}
	ticket := h.runs.Submit(req, sink)
	logging.Debug("mcp: project_sentences submitted", "run", ticket.RunID, "sentences", len(sentences))

	var out coord.Outcome
	select {
	case out = <-ticket.Done:
	case <-ctx.Done():
		return mcp.NewToolResultError(fmt.Sprintf("cancelled: %v", ctx.Err())), nil
	}

	switch out.Status {
	case coord.StatusSuperseded:
		return mcp.NewToolResultError("run superseded"), nil
	case coord.StatusError:
		// Prefer the message the run reported on its event stream.
		if ev, ok := sink.Terminal(); ok && ev.Type == pipeline.EventError {
			return mcp.NewToolResultError(ev.Message), nil
		}
		return mcp.NewToolResultError(out.Err.Error()), nil
	}

	body := projection{RunID: req.RunID, Points: sink.Points()}
	for _, ev := range sink.Events() {
		switch ev.Type {
		case pipeline.EventProgress:
			if ev.EmbeddingDim > 0 {
				body.EmbeddingDim = ev.EmbeddingDim
				body.UsedDim = ev.UsedDim
			}
		case pipeline.EventDone:
			body.TotalCount = ev.TotalCount
			body.ElapsedMs = ev.ElapsedMs
		}
	}
	if body.Points == nil {
		body.Points = []pipeline.Point{}
	}

	responseJSON, err := json.Marshal(body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}

// sentences resolves the text or corpus argument. A non-nil result is the
// tool error to return.
func (h *Handlers) sentences(request mcp.CallToolRequest) ([]string, *mcp.CallToolResult) {
	text := request.GetString("text", "")
	name := strings.TrimSpace(request.GetString("corpus", ""))

	switch {
	case text != "" && name != "":
		return nil, mcp.NewToolResultError("provide either text or corpus, not both")
	case text != "":
		return corpus.Split(text), nil
	case name != "":
		if h.corpora == nil {
			return nil, mcp.NewToolResultError("no corpus store configured")
		}
		sentences, err := h.corpora.Sentences(name)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("load corpus: %v", err))
		}
		return sentences, nil
	default:
		return nil, mcp.NewToolResultError("text or corpus argument is required")
	}
}
