// Package tui provides terminal user interface components for igpctl
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/health"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionLogs
	ActionStop
	ActionInspect
	ActionQuit
)

// PickerResult holds the result of the picker
type PickerResult struct {
	Action Action
	Run    *config.RunRecord
}

// runItem implements list.Item for run display
type runItem struct {
	record *config.RunRecord
	status health.Status
	age    string
}

func (i runItem) Title() string {
	return i.record.Name
}

func (i runItem) Description() string {
	statusIcon := "●"
	switch i.status {
	case health.StatusRunning:
		statusIcon = "✓"
	case health.StatusStale:
		statusIcon = "⚠"
	case health.StatusFailed:
		statusIcon = "✗"
	case health.StatusPending:
		statusIcon = "○"
	}

	return fmt.Sprintf("%s %s | %s | gpu %d | %s",
		statusIcon,
		i.status,
		i.record.Program,
		i.record.GPU,
		i.age,
	)
}

func (i runItem) FilterValue() string {
	return i.record.Name
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the run picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	width    int
	height   int
}

// NewPicker creates a new run picker. Runs are grouped by experiment
// with header separators.
func NewPicker(records []*config.RunRecord, checker *health.Checker) Model {
	items := buildGroupedItems(records, checker)

	l := list.New(items, newGroupedDelegate(), 80, 20)
	l.Title = "igpctl - Select Run"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	m := Model{list: l}
	skipHeaders(&m.list, 1)
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(runItem); ok {
				m.result = PickerResult{
					Action: ActionLogs,
					Run:    item.record,
				}
				m.quitting = true
				return m, tea.Quit
			}

		case "s":
			if item, ok := m.list.SelectedItem().(runItem); ok {
				m.result = PickerResult{
					Action: ActionStop,
					Run:    item.record,
				}
				m.quitting = true
				return m, tea.Quit
			}

		case "i":
			if item, ok := m.list.SelectedItem().(runItem); ok {
				m.result = PickerResult{
					Action: ActionInspect,
					Run:    item.record,
				}
				m.quitting = true
				return m, tea.Quit
			}

		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}

		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		skipHeaders(&m.list, navigationDirection(msg))
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("[enter] Logs  [s] Stop  [i] Inspect  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive run picker
func RunPicker(records []*config.RunRecord, checker *health.Checker) (PickerResult, error) {
	if len(records) == 0 {
		return PickerResult{Action: ActionQuit}, nil
	}

	m := NewPicker(records, checker)
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimplePicker is a non-interactive fallback that just lists runs
func SimplePicker(records []*config.RunRecord, checker *health.Checker) string {
	var sb strings.Builder

	sb.WriteString("igpctl - Runs\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(records) == 0 {
		sb.WriteString("No runs found.\n")
		sb.WriteString("Start one with: igpctl train <exp_name>\n")
		return sb.String()
	}

	for i, record := range records {
		status := checker.Summary(record)
		statusIcon := "●"
		switch status {
		case health.StatusRunning:
			statusIcon = "✓"
		case health.StatusStale:
			statusIcon = "⚠"
		case health.StatusFailed:
			statusIcon = "✗"
		}

		sb.WriteString(fmt.Sprintf("%d. %s %s (%s)\n",
			i+1, statusIcon, record.Name, record.Experiment))
		sb.WriteString(fmt.Sprintf("   Program: %s | GPU: %d | Status: %s\n\n",
			record.Program, record.GPU, status))
	}

	return sb.String()
}
