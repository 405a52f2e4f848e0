package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorCyan      = lipgloss.Color("86")
)

// TitleStyle for the header line.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// MetaStyle for model and dimension details next to the title.
var MetaStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// StageStyle for the current stage tag.
var StageStyle = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusTextStyle for the controller's status text.
var StatusTextStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("252"))

// DoneStyle for the completion summary.
var DoneStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// Scatter plot point styles, by how many points share a cell.
var (
	PointSparse = lipgloss.NewStyle().Foreground(colorMuted)
	PointMedium = lipgloss.NewStyle().Foreground(colorCyan)
	PointDense  = lipgloss.NewStyle().Foreground(colorHighlight).Bold(true)
)

// PlotBorder frames the scatter plot.
var PlotBorder = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorMuted)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
