// Package ui provides the Bubble Tea TUI for projector.
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/projector/internal/pipeline"
)

// RunSubmitted is sent when a run has been queued.
type RunSubmitted struct {
	RunID string
	Err   error
}

// RunEvent carries one pipeline event into the program.
type RunEvent struct {
	Event pipeline.Event
}

// Sender is the subset of *tea.Program that ProgramSink needs.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramSink forwards pipeline events to a running program. Program must be
// set before the first run is submitted.
type ProgramSink struct {
	Program Sender
}

// Emit sends e as a RunEvent. Blocks until the program accepts it.
func (s *ProgramSink) Emit(e pipeline.Event) {
	if s.Program != nil {
		s.Program.Send(RunEvent{Event: e})
	}
}
