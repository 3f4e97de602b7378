// internal/tui/app.go
//
// This is the terminal front-end for the configuration dialogue.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen
//
// All dialogue logic lives in internal/wizard; this model only renders the
// current step, feeds submitted lines to the machine, and persists the
// session record when the dialogue completes.

package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/proofrun/proofrun/internal/logbook"
	"github.com/proofrun/proofrun/internal/plan"
	"github.com/proofrun/proofrun/internal/session"
	"github.com/proofrun/proofrun/internal/wizard"
)

// ErrInterrupted is returned by GatherPlan when the operator aborts the
// dialogue with ctrl+c or esc.
var ErrInterrupted = errors.New("tui: dialogue interrupted")

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	optionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))
	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6BCB77"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// App is the dialogue model. It holds the wizard machine, the text input,
// and the last re-prompt message.
type App struct {
	machine *wizard.Machine
	store   *session.Store
	logbook *logbook.Logbook

	input   textinput.Model
	lastErr string
	notice  string
	aborted bool
	width   int
}

// NewApp builds the dialogue model around an already-seeded machine.
func NewApp(machine *wizard.Machine, store *session.Store, lb *logbook.Logbook) *App {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 256
	input.Focus()

	a := &App{
		machine: machine,
		store:   store,
		logbook: lb,
		input:   input,
	}
	if machine.ReusedCredentials() {
		a.notice = "Reusing saved credentials. Type \"back\" on the product menu to re-enter them."
		a.logInfo("Dialogue opened with saved credentials")
	} else {
		a.logInfo("Dialogue opened")
	}
	a.syncEchoMode()
	return a
}

// Aborted reports whether the operator cancelled the dialogue.
func (a *App) Aborted() bool {
	return a.aborted
}

// Machine exposes the underlying dialogue machine.
func (a *App) Machine() *wizard.Machine {
	return a.machine
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			a.aborted = true
			a.logWarn("Dialogue aborted at step %s", a.machine.Step())
			return a, tea.Quit
		case "enter":
			return a.submitLine()
		}
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// submitLine feeds the typed line to the machine. A machine error is a
// re-prompt message: the line stays cleared and the same question asks again.
func (a *App) submitLine() (tea.Model, tea.Cmd) {
	line := a.input.Value()
	a.input.SetValue("")
	a.notice = ""

	if err := a.machine.Submit(line); err != nil {
		a.lastErr = err.Error()
		return a, nil
	}
	a.lastErr = ""
	a.syncEchoMode()

	if a.machine.Done() {
		a.persistSession()
		return a, tea.Quit
	}
	return a, nil
}

// persistSession writes the durable record. A write failure never blocks the
// run; it is logged and the run proceeds with the in-memory plan.
func (a *App) persistSession() {
	if a.store == nil {
		return
	}
	record := a.machine.SessionRecord()
	if err := a.store.Save(record); err != nil {
		a.logWarn("Session save failed: %v", err)
		return
	}
	a.logInfo("Session saved for %s (school %s)", record.Email, record.SchoolID)
}

func (a *App) syncEchoMode() {
	if a.machine.Secret() {
		a.input.EchoMode = textinput.EchoPassword
		a.input.EchoCharacter = '•'
		return
	}
	a.input.EchoMode = textinput.EchoNormal
}

// View renders the current step to a string.
func (a *App) View() string {
	if a.machine.Done() || a.aborted {
		return ""
	}

	var sections []string
	sections = append(sections, headerStyle.Render("⬡ PROOFRUN"))

	if a.notice != "" {
		sections = append(sections, noticeStyle.Render(a.notice))
	}

	body := []string{promptStyle.Render(a.machine.Prompt())}
	for _, option := range a.machine.Options() {
		body = append(body, optionStyle.Render("  "+option))
	}
	body = append(body, "", a.input.View())
	if a.lastErr != "" {
		body = append(body, errorStyle.Render("✗ "+a.lastErr))
	}
	sections = append(sections, boxStyle.Render(strings.Join(body, "\n")))

	sections = append(sections, hintStyle.Render(`Enter → submit    "back" → previous question    Esc → quit`))

	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	return strings.Join(sections, "\n")
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("LOG")
	tail := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return boxStyle.Render(fmt.Sprintf("%s\n%s", head, tail))
}

// GatherPlan runs the dialogue to completion and returns the resolved plan.
func GatherPlan(machine *wizard.Machine, store *session.Store, lb *logbook.Logbook) (plan.RunPlan, error) {
	app := NewApp(machine, store, lb)
	program := tea.NewProgram(app)
	final, err := program.Run()
	if err != nil {
		return plan.RunPlan{}, fmt.Errorf("tui: %w", err)
	}
	finished, ok := final.(*App)
	if !ok {
		return plan.RunPlan{}, errors.New("tui: unexpected final model")
	}
	if finished.Aborted() || !finished.Machine().Done() {
		return plan.RunPlan{}, ErrInterrupted
	}
	return finished.Machine().Plan(), nil
}
