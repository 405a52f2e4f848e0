package main

import (
	"github.com/spf13/cobra"

	"github.com/abelbrown/projector/internal/otel"
)

var (
	dataDirFlag  string
	logLevelFlag string
	traceFlag    bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projector",
		Short: "Embed sentences and project them to 2D",
		Long: `projector embeds sentences with a local or hosted model and projects
them to 2D with UMAP. Points stream in as they are computed: a fit on a
random sample first, then the rest in batches.

Configuration is read from <data-dir>/config.yaml (or config.json), a .env
file, and PROJECTOR_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if traceFlag {
				otel.SetTrace(true)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default: $PROJECTOR_DATA_DIR or ~/.projector)")
	cmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "Record pipeline checkpoints in the event log (same as PROJECTOR_TRACE=1)")

	cmd.AddCommand(
		newRunCmd(),
		newWorkerCmd(),
		newImportCmd(),
		newCorporaCmd(),
		newRunsCmd(),
		newEventsCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return cmd
}
