// Package tui renders a live dashboard of a harvest batch.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"igharvest/internal/harvest"
)

// AccountState is where an account is within the batch
type AccountState int

const (
	AccountPending AccountState = iota
	AccountRunning
	AccountSucceeded
	AccountFailed
)

// Log levels shown in the log panel
const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarn    = "WARN"
	LevelError   = "ERROR"
)

// AccountItem is one row of the accounts panel
type AccountItem struct {
	Username string
	State    AccountState
	Items    int
	Error    string
	Started  time.Time
	Elapsed  time.Duration
}

// LogMessage is one entry of the log panel
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the bubbletea model of the dashboard
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	accounts map[string]*AccountItem
	order    []string
	selected bool

	summary *harvest.Summary
	err     error
	done    bool

	startTime time.Time
	now       func() time.Time

	width          int
	logMessages    []LogMessage
	maxLogMessages int
}

// NewModel creates an empty dashboard
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(neonCyan)),
	)
	p := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))

	return Model{
		spinner:        s,
		progress:       p,
		accounts:       make(map[string]*AccountItem),
		startTime:      time.Now(),
		now:            time.Now,
		maxLogMessages: 8,
	}
}

// Init starts the spinner
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Summary returns the batch summary once the run has finished
func (m Model) Summary() *harvest.Summary { return m.summary }

// Err returns the batch error once the run has finished
func (m Model) Err() error { return m.err }

// Done reports whether the run has finished
func (m Model) Done() bool { return m.done }

// Counts returns how many accounts are in each state
func (m Model) Counts() (pending, running, succeeded, failed int) {
	for _, a := range m.accounts {
		switch a.State {
		case AccountPending:
			pending++
		case AccountRunning:
			running++
		case AccountSucceeded:
			succeeded++
		case AccountFailed:
			failed++
		}
	}
	return
}

// Percent is the finished share of selected accounts
func (m Model) Percent() float64 {
	if len(m.order) == 0 {
		if m.done {
			return 1
		}
		return 0
	}
	_, _, ok, failed := m.Counts()
	return float64(ok+failed) / float64(len(m.order))
}

// Account returns the row for username
func (m Model) Account(username string) (AccountItem, bool) {
	a, ok := m.accounts[username]
	if !ok {
		return AccountItem{}, false
	}
	return *a, true
}

func (m *Model) selectAccounts(usernames []string) {
	m.selected = true
	m.order = append(m.order[:0], usernames...)
	for _, u := range usernames {
		m.accounts[u] = &AccountItem{Username: u, State: AccountPending}
	}
}

func (m *Model) startAccount(username string) {
	a, ok := m.accounts[username]
	if !ok {
		a = &AccountItem{Username: username}
		m.accounts[username] = a
		m.order = append(m.order, username)
	}
	a.State = AccountRunning
	a.Started = m.now()
}

func (m *Model) finishAccount(r harvest.Result) {
	a, ok := m.accounts[r.Account]
	if !ok {
		a = &AccountItem{Username: r.Account, Started: m.now()}
		m.accounts[r.Account] = a
		m.order = append(m.order, r.Account)
	}
	a.Elapsed = m.now().Sub(a.Started)
	a.Items = r.ItemsScraped
	a.Error = r.Error
	if r.Success {
		a.State = AccountSucceeded
	} else {
		a.State = AccountFailed
	}
}

// addLogMessage appends to the log panel, keeping the last maxLogMessages
func (m *Model) addLogMessage(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}
