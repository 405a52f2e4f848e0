// Command projector embeds sentences and projects them to 2D with UMAP,
// streaming points as they are computed.
//
// Usage:
//
//	projector run "first sentence" "second sentence"
//	projector run --file corpus.txt --json
//	projector worker < requests.jsonl
//	projector import NAME FILE...
//	projector corpora
//	projector runs
//	projector events
//	projector mcp
package main

import (
	"context"
	"fmt"
	"os"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	setVersion(version, commit, date)

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
