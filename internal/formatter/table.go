package formatter

import (
	"fmt"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/harunnryd/copydesk/internal/session"
	"github.com/harunnryd/copydesk/internal/vault"
)

const timeLayout = time.RFC3339

type TableFormatter struct {
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

func (f *TableFormatter) FormatEntries(entries []vault.Entry) (string, error) {
	if len(entries) == 0 {
		return "No saved content found", nil
	}

	t := f.newTable("ID", "Type", "Title", "Saved")
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = e.Body
		}
		t.Row(
			e.ID,
			e.ContentType.Label(),
			truncateString(oneLine(title), 40),
			e.SavedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return t.String(), nil
}

func (f *TableFormatter) FormatSessions(infos []session.Info) (string, error) {
	if len(infos) == 0 {
		return "No sessions found", nil
	}

	t := f.newTable("ID", "Title", "Mode", "Status", "Turns", "Jobs", "Updated")
	for _, s := range infos {
		status := s.Status
		if s.Live {
			status += " (live)"
		}
		t.Row(
			s.ID,
			truncateString(oneLine(s.Title), 30),
			s.Mode,
			status,
			fmt.Sprint(s.TurnCount),
			fmt.Sprint(s.PendingJobs),
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return t.String(), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
