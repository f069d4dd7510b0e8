package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"igharvest/internal/harvest"
)

// TUI drives the dashboard program. It satisfies harvest.Observer so it
// can be handed straight to the orchestrator.
type TUI struct {
	program *tea.Program
}

var _ harvest.Observer = (*TUI)(nil)

// New creates a dashboard; opts are passed to the bubbletea program
func New(opts ...tea.ProgramOption) *TUI {
	return &TUI{program: tea.NewProgram(NewModel(), opts...)}
}

// Run blocks until the batch finishes or the user quits, and returns the
// final model
func (t *TUI) Run() (Model, error) {
	final, err := t.program.Run()
	if err != nil {
		return Model{}, fmt.Errorf("dashboard: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return Model{}, fmt.Errorf("dashboard: unexpected model %T", final)
	}
	return m, nil
}

// Send forwards msg to the program; it returns immediately once the
// program has exited
func (t *TUI) Send(msg tea.Msg) {
	t.program.Send(msg)
}

// BatchSelected implements harvest.Observer
func (t *TUI) BatchSelected(usernames []string) {
	t.Send(BatchSelectedMsg{Usernames: usernames})
}

// AccountStarted implements harvest.Observer
func (t *TUI) AccountStarted(username string) {
	t.Send(AccountStartedMsg{Username: username})
}

// AccountFinished implements harvest.Observer
func (t *TUI) AccountFinished(result harvest.Result) {
	t.Send(AccountFinishedMsg{Result: result})
}

// Finish ends the dashboard with the batch outcome
func (t *TUI) Finish(summary *harvest.Summary, err error) {
	t.Send(DoneMsg{Summary: summary, Err: err})
}

// Log adds a line to the log panel
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}
