// Package teleop drives an interactive evaluation child: it maps
// viewer keys to discrete navigation actions and streams the chosen
// action names to the child's stdin.
package teleop

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Discrete navigation actions understood by the evaluation agent.
const (
	ActionMoveForward = "MOVE_FORWARD"
	ActionTurnLeft    = "TURN_LEFT"
	ActionTurnRight   = "TURN_RIGHT"
	ActionStop        = "STOP"
)

// ParseKey maps a viewer key to an action name.
func ParseKey(key string) (string, bool) {
	switch strings.ToLower(key) {
	case "w":
		return ActionMoveForward, true
	case "a":
		return ActionTurnLeft, true
	case "d":
		return ActionTurnRight, true
	case "s":
		return ActionStop, true
	}
	return "", false
}

const historySize = 8

var (
	teleopTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	teleopHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// Model is the bubbletea model for a teleop session.
type Model struct {
	out      io.Writer
	recent   []string
	sent     int
	err      error
	quitting bool
}

// New builds a session writing action names to out, one per line.
func New(out io.Writer) Model {
	return Model{out: out}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "esc", "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	action, ok := ParseKey(key.String())
	if !ok {
		return m, nil
	}

	if _, err := fmt.Fprintln(m.out, action); err != nil {
		m.err = err
		m.quitting = true
		return m, tea.Quit
	}
	m.sent++
	m.recent = append(m.recent, action)
	if len(m.recent) > historySize {
		m.recent = m.recent[1:]
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(teleopTitleStyle.Render("Teleop"))
	sb.WriteString(fmt.Sprintf("  %d actions sent\n\n", m.sent))
	for _, action := range m.recent {
		sb.WriteString(actionStyle.Render("> " + action))
		sb.WriteString("\n")
	}
	sb.WriteString(teleopHelpStyle.Render("[w] Forward  [a] Left  [d] Right  [s] Stop  [esc] Quit"))
	return sb.String()
}

// Sent is the number of actions streamed so far.
func (m Model) Sent() int {
	return m.sent
}

// Err reports a failed write to the child.
func (m Model) Err() error {
	return m.err
}

// Run drives a teleop session until the user exits or the child's
// stdin breaks.
func Run(out io.Writer) error {
	p := tea.NewProgram(New(out))
	final, err := p.Run()
	if err != nil {
		return err
	}
	return final.(Model).Err()
}
