// Package components renders small reusable terminal widgets.
package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/papersmith/internal/ui/theme"
)

// SeverityBar draws a fixed-width bar for a value in [0,1].
type SeverityBar struct {
	Value       float64
	Width       int
	ShowPercent bool
}

// View renders the bar, colored by severity.
func (b SeverityBar) View() string {
	width := b.Width
	if width < 4 {
		width = 4
	}
	filled := int(float64(width)*b.Value + 0.5)
	filled = max(0, min(filled, width))

	out := theme.SeverityColor(b.Value).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("░", width-filled))
	if b.ShowPercent {
		out += theme.Hint.Render(fmt.Sprintf(" %3d%%", int(b.Value*100+0.5)))
	}
	return out
}
