// Package mcptool exposes projection runs as Model Context Protocol tools.
package mcptool

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/abelbrown/projector/internal/coord"
	"github.com/abelbrown/projector/internal/pipeline"
)

// Submitter queues runs. *coord.Coordinator implements it.
type Submitter interface {
	Submit(req pipeline.Request, sink pipeline.Sink) coord.Ticket
}

// CorpusSource resolves stored corpora by name. *store.Store implements it.
type CorpusSource interface {
	Sentences(name string) ([]string, error)
}

// RegisterTools registers the projector tools with the server. corpora may
// be nil, in which case the corpus argument is rejected.
func RegisterTools(server *mcpserver.MCPServer, runs Submitter, corpora CorpusSource, defaults pipeline.Defaults) *Handlers {
	h := NewHandlers(runs, corpora, defaults)

	server.AddTool(mcp.Tool{
		Name: "project_sentences",
		Description: "Embed sentences and project them to 2D with UMAP. Returns one point per sentence, " +
			"tagged with its index in the input. Provide either text or corpus.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Sentences to project, one per line",
				},
				"corpus": map[string]interface{}{
					"type":        "string",
					"description": "Name of a stored corpus to project instead of text",
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Embedding model id (default: configured model)",
				},
				"target_dim": map[string]interface{}{
					"type":        "number",
					"description": "Truncate embeddings to this many dimensions before UMAP (default: native)",
				},
				"sample_size": map[string]interface{}{
					"type":        "number",
					"description": "Number of points the UMAP fit is computed on (default: configured)",
				},
			},
		},
	}, h.ProjectSentences)

	return h
}
