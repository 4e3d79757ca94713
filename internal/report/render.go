package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/papersmith/internal/ui/components"
	"github.com/abhisek/papersmith/internal/ui/theme"
)

// WriteTable renders the summary as an aligned terminal table.
func WriteTable(w io.Writer, s Summary) error {
	topicWidth := len("Topic")
	for _, r := range s.Rows {
		topicWidth = max(topicWidth, lipgloss.Width(r.Topic))
	}

	var b strings.Builder
	b.WriteString(theme.Title.Render(fmt.Sprintf("Class summary (%d students)", s.Students)))
	b.WriteString("\n\n")
	b.WriteString(theme.HeaderCell.Width(topicWidth+2).Render("Topic") +
		theme.HeaderCell.Width(10).Render("Affected") +
		theme.HeaderCell.Render("Mean severity"))
	b.WriteString("\n")
	b.WriteString(theme.Rule.Render(strings.Repeat("─", topicWidth+2+10+24)))
	b.WriteString("\n")

	for _, r := range s.Rows {
		bar := components.SeverityBar{Value: r.MeanSeverity, Width: 16, ShowPercent: true}
		b.WriteString(theme.Cell.Width(topicWidth+2).Render(r.Topic) +
			theme.Cell.Width(10).Render(fmt.Sprintf("%d/%d", r.Affected, r.Students)) +
			bar.View())
		b.WriteString("\n")
	}
	if len(s.Rows) == 0 {
		b.WriteString(theme.Hint.Render("No topics scored."))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteCSV writes topic,affected_students,students,mean_severity rows.
func WriteCSV(w io.Writer, s Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"topic", "affected_students", "students", "mean_severity"}); err != nil {
		return err
	}
	for _, r := range s.Rows {
		rec := []string{
			r.Topic,
			strconv.Itoa(r.Affected),
			strconv.Itoa(r.Students),
			strconv.FormatFloat(r.MeanSeverity, 'f', 4, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
