package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/abelbrown/projector/internal/otel"
	"github.com/abelbrown/projector/internal/pipeline"
)

// AppConfig wires the App to the rest of the program.
type AppConfig struct {
	// Title is shown in the header, usually the corpus name.
	Title string
	// Submit queues a run under runID and returns a Cmd that reports
	// RunSubmitted. Events for the run arrive separately as RunEvent.
	Submit func(runID string) tea.Cmd
	// Ring, if set, backs the debug overlay.
	Ring *otel.RingBuffer
}

// App is the root Bubble Tea model. It shows one run at a time: events for
// any other run ID are dropped.
// IMPORTANT: App does NOT hold the coordinator. It receives events via messages.
type App struct {
	cfg AppConfig

	runID        string
	stage        pipeline.Stage
	statusText   string
	progress     float64
	embeddingDim int
	usedDim      int
	points       []pipeline.Point
	finished     bool
	total        int
	elapsedMs    float64
	err          string

	spinner spinner.Model
	bar     progress.Model

	width        int
	height       int
	ready        bool
	debugVisible bool
}

// NewApp creates an App with its first run ID assigned. Nothing is submitted
// until Init.
func NewApp(cfg AppConfig) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorHighlight)

	bar := progress.New(
		progress.WithGradient("#5fd7d7", "#ff87d7"),
		progress.WithoutPercentage(),
	)

	a := App{cfg: cfg, spinner: s, bar: bar}
	a.newRun()
	return a
}

// Init submits the first run.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.submit())
}

// newRun assigns a fresh run ID. From here on only that run's events are
// shown. Points stay on screen until the new run resets them.
func (a *App) newRun() {
	a.runID = uuid.NewString()
	a.stage = ""
	a.statusText = "Queued."
	a.progress = 0
	a.finished = false
	a.err = ""
}

func (a App) submit() tea.Cmd {
	if a.cfg.Submit == nil {
		return nil
	}
	return a.cfg.Submit(a.runID)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.bar.Width = max(msg.Width-4, 10)
		a.ready = true
		return a, nil

	case RunSubmitted:
		if msg.RunID == a.runID && msg.Err != nil {
			a.err = msg.Err.Error()
			a.finished = true
		}
		return a, nil

	case RunEvent:
		a.apply(msg.Event)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// apply folds one pipeline event into the view state.
func (a *App) apply(e pipeline.Event) {
	if e.RunID != a.runID {
		return
	}
	switch e.Type {
	case pipeline.EventProgress:
		a.stage = e.Stage
		a.statusText = e.StatusText
		a.progress = e.Progress
		if e.EmbeddingDim > 0 {
			a.embeddingDim = e.EmbeddingDim
		}
		if e.UsedDim > 0 {
			a.usedDim = e.UsedDim
		}
	case pipeline.EventPointsReset:
		a.points = append([]pipeline.Point(nil), e.Points...)
	case pipeline.EventPointsAppend:
		a.points = append(a.points, e.Points...)
	case pipeline.EventDone:
		a.finished = true
		a.total = e.TotalCount
		a.elapsedMs = e.ElapsedMs
		a.progress = 1
	case pipeline.EventError:
		a.finished = true
		a.err = e.Message
	}
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "r":
		// Resubmitting supersedes whatever is running.
		a.newRun()
		return a, a.submit()

	case "D":
		a.debugVisible = !a.debugVisible
		return a, nil
	}

	return a, nil
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	if a.debugVisible {
		overlay := debugOverlay(a.cfg.Ring, a.width, a.height-1)
		return lipgloss.JoinVertical(lipgloss.Left, overlay, debugStatusBar(a.width))
	}

	header := a.renderHeader()
	footer := a.renderProgress()
	status := a.renderStatusBar()

	// Header, progress block and status bar, plus the plot border.
	plotH := a.height - lipgloss.Height(header) - lipgloss.Height(footer) - lipgloss.Height(status) - 2
	plotW := a.width - 2
	plot := PlotBorder.Render(renderScatter(a.points, max(plotW, 1), max(plotH, 1)))

	return lipgloss.JoinVertical(lipgloss.Left, header, plot, footer, status)
}

func (a App) renderHeader() string {
	title := a.cfg.Title
	if title == "" {
		title = "projector"
	}
	var meta []string
	if a.embeddingDim > 0 {
		meta = append(meta, fmt.Sprintf("dim %d→%d", a.embeddingDim, a.usedDim))
	}
	meta = append(meta, fmt.Sprintf("%d points", len(a.points)))
	return TitleStyle.Render(title) + MetaStyle.Render(strings.Join(meta, " · "))
}

func (a App) renderProgress() string {
	var line string
	switch {
	case a.err != "":
		line = ErrorStyle.Render("Error: " + a.err)
	case a.finished:
		line = DoneStyle.Render(fmt.Sprintf("Done. %d sentences in %.1fs", a.total, a.elapsedMs/1000))
	default:
		line = a.spinner.View() + " "
		if a.stage != "" {
			line += StageStyle.Render(string(a.stage)) + " "
		}
		line += StatusTextStyle.Render(a.statusText)
	}
	return line + "\n" + a.bar.ViewAs(a.progress)
}

func (a App) renderStatusBar() string {
	keys := StatusBarKey.Render("r") + StatusBarText.Render(":rerun  ") +
		StatusBarKey.Render("D") + StatusBarText.Render(":debug  ") +
		StatusBarKey.Render("q") + StatusBarText.Render(":quit")
	return StatusBar.Width(a.width).Render(keys)
}

// RunID returns the run currently displayed (for testing).
func (a App) RunID() string {
	return a.runID
}

// Points returns the current point set (for testing).
func (a App) Points() []pipeline.Point {
	return a.points
}

// Progress returns the last progress value (for testing).
func (a App) Progress() float64 {
	return a.progress
}
