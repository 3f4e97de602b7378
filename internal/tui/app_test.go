package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/proofrun/proofrun/internal/plan"
	"github.com/proofrun/proofrun/internal/session"
	"github.com/proofrun/proofrun/internal/wizard"
)

func newTestApp(t *testing.T) (*App, *session.Store) {
	t.Helper()
	store := session.NewStore(filepath.Join(t.TempDir(), "session.json"))
	machine := wizard.New(session.Record{}, false)
	return NewApp(machine, store, nil), store
}

// typeLine simulates typing a line and pressing enter, returning the command
// produced by the enter press.
func typeLine(t *testing.T, app *App, line string) tea.Cmd {
	t.Helper()
	if line != "" {
		model, _ := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(line)})
		if model.(*App) != app {
			t.Fatal("Update returned a different model")
		}
	}
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestDialogueCompletesAndSavesSession(t *testing.T) {
	app, store := newTestApp(t)

	for _, line := range []string{"qa@campus.test", "hunter2", "1", "midtown-college"} {
		if cmd := typeLine(t, app, line); isQuit(cmd) {
			t.Fatalf("dialogue quit early after %q", line)
		}
	}
	cmd := typeLine(t, app, "2")
	if !isQuit(cmd) {
		t.Fatal("expected quit after the final answer")
	}
	if !app.Machine().Done() {
		t.Fatal("expected machine to be done")
	}
	if app.Aborted() {
		t.Fatal("completed dialogue reported aborted")
	}

	got := app.Machine().Plan()
	if got.Action != plan.ActionCreateSection {
		t.Fatalf("unexpected action %q", got.Action)
	}
	if got.SchoolID != "midtown-college" {
		t.Fatalf("unexpected school id %q", got.SchoolID)
	}

	record, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("expected saved session, ok=%v err=%v", ok, err)
	}
	if record.Email != "qa@campus.test" || record.Password != "hunter2" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestRejectedInputShowsRepromptMessage(t *testing.T) {
	app, _ := newTestApp(t)

	if cmd := typeLine(t, app, ""); isQuit(cmd) {
		t.Fatal("dialogue quit on empty email")
	}
	view := app.View()
	if !strings.Contains(view, "email is required") {
		t.Fatalf("expected re-prompt message in view, got:\n%s", view)
	}
	if app.Machine().Step() != wizard.StepEmail {
		t.Fatalf("expected dialogue to stay on email, got %s", app.Machine().Step())
	}

	// A valid answer clears the message.
	typeLine(t, app, "qa@campus.test")
	if strings.Contains(app.View(), "email is required") {
		t.Fatal("re-prompt message survived a valid answer")
	}
}

func TestPasswordInputIsMasked(t *testing.T) {
	app, _ := newTestApp(t)

	if app.input.EchoMode != textinput.EchoNormal {
		t.Fatal("email input should not be masked")
	}
	typeLine(t, app, "qa@campus.test")
	if app.input.EchoMode != textinput.EchoPassword {
		t.Fatal("password input should be masked")
	}
	typeLine(t, app, "hunter2")
	if app.input.EchoMode != textinput.EchoNormal {
		t.Fatal("mask should drop after the password step")
	}
}

func TestEscAbortsDialogue(t *testing.T) {
	app, store := newTestApp(t)

	typeLine(t, app, "qa@campus.test")
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !isQuit(cmd) {
		t.Fatal("expected quit on esc")
	}
	if !app.Aborted() {
		t.Fatal("expected aborted flag")
	}
	if _, ok, _ := store.Load(); ok {
		t.Fatal("aborted dialogue must not save a session")
	}
}

func TestSessionSaveFailureDoesNotBlockCompletion(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := session.NewStore(filepath.Join(blocker, "session.json"))
	machine := wizard.New(session.Record{}, false)
	app := NewApp(machine, store, nil)

	for _, line := range []string{"qa@campus.test", "hunter2", "1", "midtown-college"} {
		typeLine(t, app, line)
	}
	cmd := typeLine(t, app, "2")
	if !isQuit(cmd) {
		t.Fatal("expected quit despite the save failure")
	}
	if !app.Machine().Done() {
		t.Fatal("expected machine to be done despite the save failure")
	}
}

func TestReusedCredentialsNotice(t *testing.T) {
	prior := session.Record{
		Email:       "qa@campus.test",
		Password:    "hunter2",
		Environment: plan.EnvironmentStaging,
		SchoolID:    "midtown-college",
	}
	store := session.NewStore(filepath.Join(t.TempDir(), "session.json"))
	machine := wizard.New(prior, true)
	app := NewApp(machine, store, nil)

	if machine.Step() != wizard.StepProduct {
		t.Fatalf("expected dialogue to open at the product menu, got %s", machine.Step())
	}
	if !strings.Contains(app.View(), "Reusing saved credentials") {
		t.Fatal("expected reuse notice in view")
	}
}
