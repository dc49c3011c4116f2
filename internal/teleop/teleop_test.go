package teleop

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		key    string
		action string
		ok     bool
	}{
		{"w", ActionMoveForward, true},
		{"W", ActionMoveForward, true},
		{"a", ActionTurnLeft, true},
		{"d", ActionTurnRight, true},
		{"s", ActionStop, true},
		{"x", "", false},
		{"enter", "", false},
	}
	for _, tt := range tests {
		action, ok := ParseKey(tt.key)
		if action != tt.action || ok != tt.ok {
			t.Errorf("ParseKey(%q): expected (%q, %v), got (%q, %v)",
				tt.key, tt.action, tt.ok, action, ok)
		}
	}
}

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModel_StreamsActions(t *testing.T) {
	var out bytes.Buffer
	var model tea.Model = New(&out)

	for _, r := range "wadsx" {
		model, _ = model.Update(keyMsg(r))
	}

	m := model.(Model)
	if m.Sent() != 4 {
		t.Errorf("expected 4 actions sent, got %d", m.Sent())
	}
	want := "MOVE_FORWARD\nTURN_LEFT\nTURN_RIGHT\nSTOP\n"
	if out.String() != want {
		t.Errorf("expected %q on the child's stdin, got %q", want, out.String())
	}
	if !strings.Contains(m.View(), "4 actions sent") {
		t.Errorf("view does not echo the count: %q", m.View())
	}
	if !strings.Contains(m.View(), "> STOP") {
		t.Errorf("view does not echo recent actions: %q", m.View())
	}
}

func TestModel_EscapeQuits(t *testing.T) {
	var out bytes.Buffer
	model, cmd := New(&out).Update(tea.KeyMsg{Type: tea.KeyEsc})

	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	m := model.(Model)
	if m.View() != "" {
		t.Errorf("expected an empty view after quitting, got %q", m.View())
	}
	if out.Len() != 0 {
		t.Errorf("escape should not stream an action, got %q", out.String())
	}
}

type brokenPipe struct{}

func (brokenPipe) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestModel_WriteFailureQuits(t *testing.T) {
	model, cmd := New(brokenPipe{}).Update(keyMsg('w'))

	if cmd == nil {
		t.Fatal("expected a quit command after a failed write")
	}
	if err := model.(Model).Err(); err == nil {
		t.Fatal("expected the write error to be retained")
	}
}
