package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard
func (m Model) View() string {
	sections := []string{
		m.renderStatsPanel(),
		m.renderAccountsPanel(),
		m.renderLogsPanel(),
	}
	if !m.done {
		sections = append(sections, helpStyle.Render("q to stop watching"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) renderStatsPanel() string {
	title := titleStyle.Render(" HARVEST ")

	pending, running, succeeded, failed := m.Counts()
	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(m.now().Sub(m.startTime)))),
		fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
			statsLabelStyle.Render("Pending:"), statsValueStyle.Render(fmt.Sprint(pending)),
			statsLabelStyle.Render("Running:"), statsValueStyle.Render(fmt.Sprint(running)),
			statsLabelStyle.Render("OK:"), successStyle.Render(fmt.Sprint(succeeded)),
			statsLabelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprint(failed)),
		),
		m.progress.ViewAs(m.Percent()),
	}

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(stats, "\n")))
}

func (m Model) renderAccountsPanel() string {
	title := titleStyle.Render(" ACCOUNTS ")

	if len(m.order) == 0 {
		msg := "Selecting accounts..."
		if m.selected || m.done {
			msg = "No accounts to scrape today"
		}
		return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, pendingStyle.Render(msg)))
	}

	rows := make([]string, 0, len(m.order))
	for _, u := range m.order {
		rows = append(rows, m.renderAccount(m.accounts[u]))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n")))
}

func (m Model) renderAccount(a *AccountItem) string {
	switch a.State {
	case AccountRunning:
		return fmt.Sprintf("%s %s %s", m.spinner.View(), runningStyle.Render(a.Username),
			pendingStyle.Render(formatDuration(m.now().Sub(a.Started))))
	case AccountSucceeded:
		return fmt.Sprintf("%s %s %s", successStyle.Render("✓"), a.Username,
			statsValueStyle.Render(fmt.Sprintf("%d items in %s", a.Items, formatDuration(a.Elapsed))))
	case AccountFailed:
		return fmt.Sprintf("%s %s %s", errorStyle.Render("✗"), a.Username, warningStyle.Render(a.Error))
	default:
		return pendingStyle.Render("• " + a.Username)
	}
}

func (m Model) renderLogsPanel() string {
	title := titleStyle.Render(" LOG ")

	if len(m.logMessages) == 0 {
		return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, pendingStyle.Render("No logs yet...")))
	}

	lines := make([]string, 0, len(m.logMessages))
	for _, l := range m.logMessages {
		ts := logTimestampStyle.Render(l.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(l.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", l.Level))
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, level, l.Message))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

// formatDuration renders d as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%02d:%02d", mins, s)
}
