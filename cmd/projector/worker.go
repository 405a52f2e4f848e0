package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abelbrown/projector/internal/coord"
	"github.com/abelbrown/projector/internal/logging"
	"github.com/abelbrown/projector/internal/pipeline"
)

// maxRequestLine bounds one JSONL request. Large corpora arrive inline.
const maxRequestLine = 64 * 1024 * 1024

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve run requests over stdin/stdout",
		Long: `Read run requests as JSON lines on stdin and write events as JSON lines
on stdout. Each request supersedes the one before it. After stdin closes,
the worker exits once the last request has finished.`,
		Example: `  echo '{"sentences":["a","b","c"]}' | projector worker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			return serveWorker(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), e.coord, e.cfg.RequestDefaults())
		},
	}
}

// serveWorker submits every request line from in and writes all events to
// out. Malformed lines produce an error event and are otherwise skipped.
func serveWorker(ctx context.Context, in io.Reader, out io.Writer, runs submitter, defaults pipeline.Defaults) error {
	sink := pipeline.NewWriterSink(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)

	var last *coord.Ticket
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var req pipeline.Request
		if err := json.Unmarshal(line, &req); err != nil {
			sink.Emit(pipeline.Event{Type: pipeline.EventError, Message: fmt.Sprintf("invalid request: %v", err)})
			continue
		}
		t := runs.Submit(req.Normalize(defaults), sink)
		logging.Debug("worker: submitted", "run", t.RunID, "job", t.ID)
		last = &t
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}

	if last != nil {
		select {
		case <-last.Done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sink.Err()
}
