// Package theme holds the terminal palette for reports.
package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette
var (
	Primary = lipgloss.Color("#8B5CF6") // Vivid Purple
	Success = lipgloss.Color("#22C55E") // Green
	Warning = lipgloss.Color("#F59E0B") // Amber
	Error   = lipgloss.Color("#F43F5E") // Rose
	Text    = lipgloss.Color("#F8FAFC") // White
	TextDim = lipgloss.Color("#94A3B8") // Slate
	Border  = lipgloss.Color("#334155") // Slate
)

var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	HeaderCell = lipgloss.NewStyle().
			Bold(true).
			Foreground(Text).
			PaddingRight(2)

	Cell = lipgloss.NewStyle().
		Foreground(Text).
		PaddingRight(2)

	Rule = lipgloss.NewStyle().
		Foreground(Border)
)

// SeverityColor grades a severity in [0,1].
func SeverityColor(severity float64) lipgloss.Style {
	switch {
	case severity >= 0.6:
		return lipgloss.NewStyle().Foreground(Error)
	case severity >= 0.3:
		return lipgloss.NewStyle().Foreground(Warning)
	default:
		return lipgloss.NewStyle().Foreground(Success)
	}
}
