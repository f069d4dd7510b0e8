package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"igharvest/internal/harvest"
)

// BatchSelectedMsg carries the accounts due in this batch
type BatchSelectedMsg struct {
	Usernames []string
}

// AccountStartedMsg is sent when an account begins processing
type AccountStartedMsg struct {
	Username string
}

// AccountFinishedMsg is sent with the outcome of one account
type AccountFinishedMsg struct {
	Result harvest.Result
}

// DoneMsg ends the dashboard with the batch outcome
type DoneMsg struct {
	Summary *harvest.Summary
	Err     error
}

// LogMsg adds a line to the log panel
type LogMsg struct {
	Level   string
	Message string
}

// Update handles all messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case BatchSelectedMsg:
		m.selectAccounts(msg.Usernames)
		m.addLogMessage(LevelInfo, fmt.Sprintf("%d accounts due", len(msg.Usernames)))
		return m, nil

	case AccountStartedMsg:
		m.startAccount(msg.Username)
		m.addLogMessage(LevelInfo, "Started "+msg.Username)
		return m, nil

	case AccountFinishedMsg:
		m.finishAccount(msg.Result)
		if msg.Result.Success {
			m.addLogMessage(LevelSuccess, fmt.Sprintf("%s: %d items", msg.Result.Account, msg.Result.ItemsScraped))
		} else {
			m.addLogMessage(LevelError, msg.Result.Account+": "+msg.Result.Error)
		}
		return m, nil

	case LogMsg:
		m.addLogMessage(msg.Level, msg.Message)
		return m, nil

	case DoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		if msg.Err != nil {
			m.addLogMessage(LevelError, msg.Err.Error())
		} else if msg.Summary != nil {
			m.addLogMessage(LevelInfo, msg.Summary.Message)
		}
		return m, tea.Quit
	}

	return m, nil
}
