package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mdsync/mdsync/internal/engine"
)

// Table renders rows under a bold header with columns padded to the widest
// cell.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	line := func(cells []string, style *lipgloss.Style) {
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			pad := widths[i] - lipgloss.Width(cell)
			if style != nil {
				cell = style.Render(cell)
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", pad+2))
			}
		}
		b.WriteString("\n")
	}

	line(header, &headerStyle)
	for _, row := range rows {
		line(row, nil)
	}
	return b.String()
}

// SessionTable renders session statuses.
func SessionTable(statuses []engine.Status) string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		last := "-"
		if t := st.LastSync(); !t.IsZero() {
			last = t.Format(time.TimeOnly)
		}
		rows = append(rows, []string{st.ID, string(st.State), st.TextPath, st.RenderedPath, last})
	}
	return Table([]string{"ID", "STATE", "TEXT", "RENDERED", "LAST SYNC"}, rows)
}

// EventTable renders journal events.
func EventTable(events []engine.Event) string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		detail := e.Detail
		if detail == "" {
			detail = e.Target
		}
		rows = append(rows, []string{
			e.At.Format(time.DateTime),
			e.SessionID,
			string(e.Kind),
			e.Direction,
			detail,
		})
	}
	return Table([]string{"TIME", "SESSION", "EVENT", "DIRECTION", "DETAIL"}, rows)
}
