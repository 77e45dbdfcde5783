// Package tui renders a live terminal dashboard for a running session,
// built on Bubble Tea with Lipgloss styling. It shows scenario progress,
// pool occupancy, host pressure, and the most recent results.
package tui

import "github.com/charmbracelet/lipgloss"

// Dashboard palette. ANSI 256 colors, dark-terminal friendly; status colors
// follow the usual green/amber/red convention.
var (
	colorAccent = lipgloss.Color("39")  // blue
	colorGood   = lipgloss.Color("42")  // green
	colorWarn   = lipgloss.Color("214") // amber
	colorBad    = lipgloss.Color("196") // red
	colorDim    = lipgloss.Color("245") // gray
	colorFrame  = lipgloss.Color("240") // border gray
)

var (
	baseStyle    = lipgloss.NewStyle()
	mutedStyle   = lipgloss.NewStyle().Foreground(colorDim)
	sectionStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)

	statusOK      = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	statusWarning = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	statusError   = lipgloss.NewStyle().Foreground(colorBad).Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(colorAccent).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorFrame).
			Padding(0, 1)
)

// passFailStyle picks the status style for a boolean outcome.
func passFailStyle(ok bool) lipgloss.Style {
	if ok {
		return statusOK
	}
	return statusError
}

// pressureStyle grades a utilization percentage.
func pressureStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 90:
		return statusError
	case pct >= 75:
		return statusWarning
	default:
		return statusOK
	}
}
