package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// eventRecord mirrors otel.Event for JSON decoding.
// We decode from JSONL rather than importing otel to keep this
// subcommand usable even if the event schema evolves.
type eventRecord struct {
	Time      time.Time      `json:"t"`
	Level     string         `json:"level"`
	Kind      string         `json:"kind"`
	Comp      string         `json:"comp"`
	SessionID string         `json:"session_id"`
	RunID     string         `json:"run_id"`
	Job       uint64         `json:"job"`
	DurMs     float64        `json:"dur_ms"`
	Count     int            `json:"count"`
	Model     string         `json:"model"`
	Dims      int            `json:"dims"`
	Err       string         `json:"err"`
	Msg       string         `json:"msg"`
	Extra     map[string]any `json:"extra"`
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level string) int {
	switch level {
	case "trace":
		return -1
	case "debug":
		return 0
	case "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

// eventFilter selects records for display. Zero fields match everything.
type eventFilter struct {
	kind  string // prefix
	level string // minimum
	comp  string
	run   string // prefix
}

func (f eventFilter) match(ev eventRecord) bool {
	if f.kind != "" && !strings.HasPrefix(ev.Kind, f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(f.level) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.run != "" && !strings.HasPrefix(ev.RunID, f.run) {
		return false
	}
	return true
}

// formatEvent renders one record as a single human-readable line.
func formatEvent(ev eventRecord) string {
	ts := ev.Time.Format("15:04:05.000")
	lvl := strings.ToUpper(ev.Level)
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-8s] %-18s", ts, lvl, ev.Comp, ev.Kind)}

	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Model != "" {
		parts = append(parts, "model="+ev.Model)
	}
	if ev.Dims > 0 {
		parts = append(parts, fmt.Sprintf("dims=%d", ev.Dims))
	}
	if ev.RunID != "" {
		parts = append(parts, "run="+truncate(ev.RunID, 11))
	}
	if ev.Job > 0 {
		parts = append(parts, fmt.Sprintf("job=%d", ev.Job))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}

	return strings.Join(parts, " ")
}

func newEventsCmd() *cobra.Command {
	var (
		tail    int
		follow  bool
		filter  eventFilter
		rawJSON bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Structured event log viewer",
		Long: `Show the structured event log (projector.events.jsonl in the data
directory). Set PROJECTOR_TRACE=1 while running to include checkpoint
and yield trace events.`,
		Example: `  projector events --tail 100
  projector events --kind umap --level info
  projector events --run 3f2a -f`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logPath := cfg.EventLogPath()

			f, err := os.Open(logPath)
			if err != nil {
				return fmt.Errorf("event log not found at %s (run projector first to generate events): %w", logPath, err)
			}
			defer f.Close()

			out := cmd.OutOrStdout()
			show := func(l parsedLine) {
				if rawJSON {
					fmt.Fprintln(out, string(l.raw))
				} else {
					fmt.Fprintln(out, formatEvent(l.ev))
				}
			}

			for _, l := range readTailLines(f, tail, filter.match) {
				show(l)
			}
			if !follow {
				return nil
			}
			return followLines(cmd, f, filter.match, show)
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 50, "Number of recent lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow mode (like tail -f)")
	cmd.Flags().StringVar(&filter.kind, "kind", "", "Filter by event kind prefix (e.g. 'umap')")
	cmd.Flags().StringVar(&filter.level, "level", "", "Minimum level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&filter.comp, "comp", "", "Filter by component name")
	cmd.Flags().StringVar(&filter.run, "run", "", "Filter by run ID prefix")
	cmd.Flags().BoolVar(&rawJSON, "json", false, "Output raw JSON lines")

	return cmd
}

// followLines polls f for appended lines until the command's context ends.
func followLines(cmd *cobra.Command, f *os.File, match func(eventRecord) bool, show func(parsedLine)) error {
	ctx := cmd.Context()
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		line = trimLine(line)
		if len(line) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if match(ev) {
			show(parsedLine{ev: ev, raw: line})
		}
	}
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

// readTailLines reads r and returns the last n lines matching the filter.
func readTailLines(r io.Reader, n int, match func(eventRecord) bool) []parsedLine {
	scanner := bufio.NewScanner(r)
	// Allow large lines (some events may have big Extra maps)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	var ring []parsedLine
	if n > 0 {
		ring = make([]parsedLine, 0, n)
	}

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if !match(ev) || n <= 0 {
			continue
		}
		// Make a copy of raw since scanner reuses the buffer
		rawCopy := make([]byte, len(raw))
		copy(rawCopy, raw)

		if len(ring) < n {
			ring = append(ring, parsedLine{ev: ev, raw: rawCopy})
		} else {
			// Shift left
			copy(ring, ring[1:])
			ring[n-1] = parsedLine{ev: ev, raw: rawCopy}
		}
	}

	return ring
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
