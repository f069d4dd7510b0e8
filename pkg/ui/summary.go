package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"igharvest/internal/harvest"
)

// maxErrorWidth truncates long provider errors in the summary table
const maxErrorWidth = 60

var (
	headerStyle = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// RenderSummary formats a batch summary as a headline plus a per-account table
func RenderSummary(s *harvest.Summary) string {
	if s == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(highlightStyle.Render(s.Message))
	b.WriteString("\n")

	if len(s.Results) == 0 {
		b.WriteString(dimStyle.Render("accounts processed: 0"))
		b.WriteString("\n")
		return b.String()
	}

	rows := make([][]string, 0, len(s.Results))
	for _, r := range s.Results {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		rows = append(rows, []string{r.Account, status, strconv.Itoa(r.ItemsScraped), truncate(r.Error, maxErrorWidth)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(s.Results) {
				if s.Results[row].Success {
					return cellStyle.Foreground(colorGreen)
				}
				return cellStyle.Foreground(colorRed)
			}
			return cellStyle
		}).
		Headers("ACCOUNT", "STATUS", "ITEMS", "ERROR").
		Rows(rows...)

	b.WriteString(t.String())
	b.WriteString("\n")

	failed := s.AccountsProcessed - s.Succeeded()
	line := fmt.Sprintf("accounts processed: %d  succeeded: %d  failed: %d", s.AccountsProcessed, s.Succeeded(), failed)
	if failed > 0 {
		b.WriteString(warningStyle.Render(line))
	} else {
		b.WriteString(successStyle.Render(line))
	}
	b.WriteString("\n")
	return b.String()
}

// PrintSummary writes RenderSummary(s) to w
func PrintSummary(w io.Writer, s *harvest.Summary) {
	fmt.Fprint(w, RenderSummary(s))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
