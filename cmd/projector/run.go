package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/abelbrown/projector/internal/coord"
	"github.com/abelbrown/projector/internal/corpus"
	"github.com/abelbrown/projector/internal/logging"
	"github.com/abelbrown/projector/internal/pipeline"
	"github.com/abelbrown/projector/internal/ui"
)

var (
	runFiles          []string
	runCorpus         string
	runJSON           bool
	runModel          string
	runPrecision      string
	runBatch          int
	runTargetDim      int
	runSample         int
	runTransformBatch int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [sentences...]",
		Short: "Embed and project sentences",
		Long: `Embed sentences and project them to 2D.

Input comes from positional arguments, one or more --file paths
(.txt, .csv, .json, .jsonl), or a stored --corpus. The TUI shows points
as they arrive; press r to rerun and q to quit. With --json, events are
written to stdout as JSON lines instead.`,
		Example: `  projector run "the cat sat" "on the mat" "dogs bark"
  projector run --file headlines.txt --target-dim 128
  projector run --corpus news --json > events.jsonl`,
		RunE: runRun,
	}

	cmd.Flags().StringSliceVarP(&runFiles, "file", "f", nil, "Read sentences from file (repeatable)")
	cmd.Flags().StringVarP(&runCorpus, "corpus", "c", "", "Use a stored corpus")
	cmd.Flags().BoolVar(&runJSON, "json", false, "Write JSONL events to stdout instead of the TUI")
	cmd.Flags().StringVarP(&runModel, "model", "m", "", "Embedding model (default: configured)")
	cmd.Flags().StringVar(&runPrecision, "precision", "", "Precision mode (default: configured)")
	cmd.Flags().IntVar(&runBatch, "batch", 0, "Embedding batch size")
	cmd.Flags().IntVar(&runTargetDim, "target-dim", 0, "Truncate embeddings to this many dimensions (0 = native)")
	cmd.Flags().IntVar(&runSample, "sample", 0, "UMAP fit sample size")
	cmd.Flags().IntVar(&runTransformBatch, "transform-batch", 0, "UMAP transform batch size")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	sentences, title, err := gatherSentences(ctx, e.store, runCorpus, runFiles, args)
	if err != nil {
		return err
	}

	base := pipeline.Request{
		ModelID:                runModel,
		PrecisionMode:          runPrecision,
		Sentences:              sentences,
		EmbeddingBatchSize:     runBatch,
		TargetDim:              runTargetDim,
		UMAPFitSampleSize:      runSample,
		UMAPTransformBatchSize: runTransformBatch,
	}
	defaults := e.cfg.RequestDefaults()

	if runJSON {
		return runJSONMode(ctx, e.coord, base.Normalize(defaults), cmd.OutOrStdout())
	}
	return runTUI(ctx, e, base, defaults, title)
}

// corpusSource resolves stored corpora. *store.Store implements it.
type corpusSource interface {
	Sentences(name string) ([]string, error)
}

// gatherSentences picks the run input. A stored corpus wins over files, and
// files win over positional arguments. The returned title names the input.
func gatherSentences(ctx context.Context, st corpusSource, corpusName string, files, args []string) ([]string, string, error) {
	switch {
	case corpusName != "":
		if st == nil {
			return nil, "", errors.New("no corpus store available")
		}
		sentences, err := st.Sentences(corpusName)
		if err != nil {
			return nil, "", err
		}
		return sentences, corpusName, nil

	case len(files) > 0:
		sentences, err := corpus.LoadAll(ctx, files)
		if err != nil {
			return nil, "", err
		}
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = filepath.Base(f)
		}
		return sentences, strings.Join(names, ", "), nil

	case len(args) > 0:
		var sentences []string
		for _, a := range args {
			sentences = append(sentences, corpus.Split(a)...)
		}
		return sentences, "projector", nil
	}
	return nil, "", errors.New("no input: pass sentences, --file or --corpus")
}

// submitter queues runs. *coord.Coordinator implements it.
type submitter interface {
	Submit(req pipeline.Request, sink pipeline.Sink) coord.Ticket
}

// runJSONMode submits one run and streams its events to w.
func runJSONMode(ctx context.Context, runs submitter, req pipeline.Request, w io.Writer) error {
	sink := pipeline.NewWriterSink(w)
	ticket := runs.Submit(req, sink)

	select {
	case out := <-ticket.Done:
		if err := sink.Err(); err != nil {
			return fmt.Errorf("write events: %w", err)
		}
		switch out.Status {
		case coord.StatusError:
			return fmt.Errorf("run %s failed: %w", out.RunID, out.Err)
		case coord.StatusSuperseded:
			return fmt.Errorf("run %s was superseded", out.RunID)
		}
		logging.Info("run finished", "run", out.RunID, "elapsed", out.Elapsed)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runTUI starts the Bubble Tea program. Each submission from the App becomes
// a new run that supersedes the previous one.
func runTUI(ctx context.Context, e *env, base pipeline.Request, defaults pipeline.Defaults, title string) error {
	sink := &ui.ProgramSink{}

	app := ui.NewApp(ui.AppConfig{
		Title: title,
		Ring:  e.ring,
		Submit: func(runID string) tea.Cmd {
			req := base
			req.RunID = runID
			req = req.Normalize(defaults)
			return func() tea.Msg {
				t := e.coord.Submit(req, sink)
				return ui.RunSubmitted{RunID: t.RunID}
			}
		},
	})

	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	sink.Program = program

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
