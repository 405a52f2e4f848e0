package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/projector/internal/corpus"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import NAME FILE...",
		Short: "Store sentences from files as a named corpus",
		Long: `Load sentences from one or more files and store them under NAME,
replacing any corpus of that name. Supported formats: .txt (one sentence
per line), .csv (a "text" or "sentence" column, else the first), .json
(strings or objects with "text") and .jsonl.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, files := args[0], args[1:]

			sentences, err := corpus.LoadAll(cmd.Context(), files)
			if err != nil {
				return err
			}
			if len(sentences) == 0 {
				return fmt.Errorf("no sentences found in %s", strings.Join(files, ", "))
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sources := make([]string, len(files))
			for i, f := range files {
				sources[i] = filepath.Base(f)
			}
			c, err := st.SaveCorpus(name, strings.Join(sources, ","), sentences)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sentences into %q\n", c.Sentences, c.Name)
			return nil
		},
	}
}

func newCorporaCmd() *cobra.Command {
	var remove string

	cmd := &cobra.Command{
		Use:   "corpora",
		Short: "List stored corpora",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if remove != "" {
				if err := st.DeleteCorpus(remove); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", remove)
				return nil
			}

			list, err := st.ListCorpora()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No corpora. Add one with: projector import NAME FILE")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSENTENCES\tSOURCE\tCREATED")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.Name, c.Sentences, c.Source, c.Created.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&remove, "delete", "", "Delete the named corpus")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.RecentRuns(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tRUN\tMODEL\tN\tSTATUS\tELAPSED\tMESSAGE")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.*fms\t%s\n",
					r.Started.Local().Format(time.DateTime), truncate(r.RunID, 12), r.Model, r.Sentences,
					r.Status, durPrecision(r.ElapsedMs), r.ElapsedMs, truncate(r.Message, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
