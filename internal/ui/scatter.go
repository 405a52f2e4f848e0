package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/projector/internal/pipeline"
)

// plotPadding keeps points off the plot border.
const plotPadding = 1

type cell struct {
	count int
}

// bounds is the data-space rectangle mapped onto the plot.
type bounds struct {
	minX, maxX, minY, maxY float64
}

func pointBounds(points []pipeline.Point) bounds {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		b.minX = math.Min(b.minX, p.X)
		b.maxX = math.Max(b.maxX, p.X)
		b.minY = math.Min(b.minY, p.Y)
		b.maxY = math.Max(b.maxY, p.Y)
	}
	if b.minX > b.maxX {
		return bounds{-1, 1, -1, 1}
	}
	// A single point, or a degenerate axis, still needs a non-zero span.
	if b.maxX-b.minX < 1e-9 {
		b.minX, b.maxX = b.minX-1, b.maxX+1
	}
	if b.maxY-b.minY < 1e-9 {
		b.minY, b.maxY = b.minY-1, b.maxY+1
	}
	return b
}

// renderScatter draws points onto a width x height character grid. Cells
// holding more points are drawn denser and brighter.
func renderScatter(points []pipeline.Point, width, height int) string {
	if width < 1 || height < 1 {
		return ""
	}

	grid := make([][]cell, height)
	for row := range grid {
		grid[row] = make([]cell, width)
	}

	if len(points) == 0 {
		return emptyScatter(width, height)
	}

	b := pointBounds(points)
	innerW := max(width-2*plotPadding, 1)
	innerH := max(height-2*plotPadding, 1)
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		nx := (p.X - b.minX) / (b.maxX - b.minX)
		ny := (p.Y - b.minY) / (b.maxY - b.minY)
		col := plotPadding + int(math.Round(nx*float64(innerW-1)))
		// Screen rows grow downwards.
		row := plotPadding + int(math.Round((1-ny)*float64(innerH-1)))
		col = min(max(col, 0), width-1)
		row = min(max(row, 0), height-1)
		grid[row][col].count++
	}

	var sb strings.Builder
	for row := range grid {
		for _, c := range grid[row] {
			sb.WriteString(renderCell(c))
		}
		if row < len(grid)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func renderCell(c cell) string {
	switch {
	case c.count == 0:
		return " "
	case c.count == 1:
		return PointSparse.Render("·")
	case c.count <= 3:
		return PointMedium.Render("•")
	default:
		return PointDense.Render("●")
	}
}

func emptyScatter(width, height int) string {
	msg := "no points yet"
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
		StatusBarText.Render(msg))
}
