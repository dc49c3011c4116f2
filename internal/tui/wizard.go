package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/polonav/igpctl/internal/condaenv"
	"github.com/polonav/igpctl/internal/config"
)

// InitOptions collects the answers from the interactive setup wizard.
type InitOptions struct {
	ProjectRoot string
	Python      string // explicit interpreter path, empty when conda or PATH is used
	CondaEnv    string // conda environment name, empty unless conda was chosen
	GPUs        []int
	DataDir     string
}

// wizardStep identifies the current step.
type wizardStep int

const (
	stepRoot wizardStep = iota
	stepInterp
	stepDetail
	stepExtras
	stepConfirm
)

// interpreter source choices
const (
	interpConda  = "conda"
	interpPath   = "interpreter"
	interpSystem = "system"
)

// extrasField identifies a field in the extras step.
type extrasField int

const (
	extGPUs extrasField = iota
	extData
	extFieldCount
)

// wizardModel drives the multi-step setup wizard behind igpctl init.
type wizardModel struct {
	step wizardStep

	// Step 1: project root
	rootInput textinput.Model

	// Step 2: interpreter source
	interpList list.Model

	// Step 3: conda env name or interpreter path
	detailInput textinput.Model

	// Step 4: extras
	extCursor extrasField
	gpusInput textinput.Model
	dataInput textinput.Model

	// Collected values
	selectedRoot   string
	selectedInterp string
	selectedDetail string

	width  int
	height int
}

// interpItem implements list.Item for interpreter source selection.
type interpItem struct {
	name        string
	description string
}

func (t interpItem) Title() string       { return t.name }
func (t interpItem) Description() string { return t.description }
func (t interpItem) FilterValue() string { return t.name }

// wizardStyles
var (
	wizardTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				MarginBottom(1)

	wizardStepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	wizardActiveStepStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	wizardLabelStyle = lipgloss.NewStyle().
				Bold(true).
				MarginBottom(1)

	wizardValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39"))

	wizardDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func newWizardModel() wizardModel {
	ri := textinput.New()
	ri.Placeholder = "/path/to/polo"
	ri.Focus()
	ri.CharLimit = 256
	ri.Width = 60
	ri.ShowSuggestions = true

	di := textinput.New()
	di.CharLimit = 256
	di.Width = 50

	gi := textinput.New()
	gi.Placeholder = "0,1"
	gi.CharLimit = 64
	gi.Width = 30

	da := textinput.New()
	da.Placeholder = "/data/datasets/hm3d"
	da.CharLimit = 256
	da.Width = 60

	return wizardModel{
		step:        stepRoot,
		rootInput:   ri,
		detailInput: di,
		gpusInput:   gi,
		dataInput:   da,
	}
}

func (w *wizardModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update processes a message and returns (done, initOptions, cmd).
// done=true with non-nil opts means wizard completed successfully.
// done=true with nil opts means wizard was cancelled.
func (w *wizardModel) Update(msg tea.Msg) (bool, *InitOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyCtrlC:
			return true, nil, nil
		case tea.KeyEsc:
			return w.handleBack()
		}
	}

	switch w.step {
	case stepRoot:
		return w.updateRoot(msg)
	case stepInterp:
		return w.updateInterp(msg)
	case stepDetail:
		return w.updateDetail(msg)
	case stepExtras:
		return w.updateExtras(msg)
	case stepConfirm:
		return w.updateConfirm(msg)
	}

	return false, nil, nil
}

func (w *wizardModel) handleBack() (bool, *InitOptions, tea.Cmd) {
	switch w.step {
	case stepRoot:
		// Esc at first step cancels wizard
		return true, nil, nil
	case stepInterp:
		w.step = stepRoot
		w.rootInput.Focus()
		return false, nil, textinput.Blink
	case stepDetail:
		w.step = stepInterp
		w.detailInput.Blur()
		return false, nil, nil
	case stepExtras:
		w.blurExtras()
		if w.selectedInterp == interpSystem {
			w.step = stepInterp
			return false, nil, nil
		}
		w.step = stepDetail
		w.detailInput.Focus()
		return false, nil, textinput.Blink
	case stepConfirm:
		w.step = stepExtras
		return false, nil, w.focusCurrentExtra()
	}
	return false, nil, nil
}

func (w *wizardModel) updateRoot(msg tea.Msg) (bool, *InitOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		path := strings.TrimSpace(w.rootInput.Value())
		if path == "" {
			return false, nil, nil
		}
		w.selectedRoot = expandHome(path)
		w.step = stepInterp
		w.rootInput.Blur()
		w.loadInterpChoices()
		return false, nil, nil
	}

	var cmd tea.Cmd
	w.rootInput, cmd = w.rootInput.Update(msg)

	// Update path suggestions after each keystroke
	w.updateRootSuggestions()

	return false, nil, cmd
}

func (w *wizardModel) updateInterp(msg tea.Msg) (bool, *InitOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		if item, ok := w.interpList.SelectedItem().(interpItem); ok {
			w.selectedInterp = item.name
			if w.selectedInterp == interpSystem {
				// Nothing more to ask about the interpreter
				w.step = stepExtras
				return false, nil, w.focusCurrentExtra()
			}
			w.step = stepDetail
			w.detailInput.Focus()
			w.seedDetailInput()
			return false, nil, textinput.Blink
		}
		return false, nil, nil
	}

	var cmd tea.Cmd
	w.interpList, cmd = w.interpList.Update(msg)
	return false, nil, cmd
}

// seedDetailInput prepares the detail prompt for the chosen source. For
// conda the project's environment.yml name is pre-filled when it parses.
func (w *wizardModel) seedDetailInput() {
	w.detailInput.SetValue("")
	switch w.selectedInterp {
	case interpConda:
		w.detailInput.Placeholder = "igp"
		if name := suggestCondaEnv(w.selectedRoot); name != "" {
			w.detailInput.SetValue(name)
		}
	case interpPath:
		w.detailInput.Placeholder = "/usr/bin/python3"
	}
}

func (w *wizardModel) updateDetail(msg tea.Msg) (bool, *InitOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		value := strings.TrimSpace(w.detailInput.Value())
		if value == "" {
			return false, nil, nil
		}
		if w.selectedInterp == interpPath {
			value = expandHome(value)
		}
		w.selectedDetail = value
		w.step = stepExtras
		w.detailInput.Blur()
		return false, nil, w.focusCurrentExtra()
	}

	var cmd tea.Cmd
	w.detailInput, cmd = w.detailInput.Update(msg)
	return false, nil, cmd
}

func (w *wizardModel) activeExtraInput() *textinput.Model {
	switch w.extCursor {
	case extGPUs:
		return &w.gpusInput
	case extData:
		return &w.dataInput
	}
	return nil
}

func (w *wizardModel) blurExtras() {
	w.gpusInput.Blur()
	w.dataInput.Blur()
}

func (w *wizardModel) focusCurrentExtra() tea.Cmd {
	w.blurExtras()
	if ti := w.activeExtraInput(); ti != nil {
		ti.Focus()
		return textinput.Blink
	}
	return nil
}

func (w *wizardModel) updateExtras(msg tea.Msg) (bool, *InitOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEnter:
			if _, err := config.ParseGPUList(w.gpusInput.Value()); err != nil {
				return false, nil, nil
			}
			w.blurExtras()
			w.step = stepConfirm
			return false, nil, nil
		case tea.KeyUp:
			w.extCursor = (w.extCursor - 1 + extFieldCount) % extFieldCount
			return false, nil, w.focusCurrentExtra()
		case tea.KeyDown, tea.KeyTab:
			w.extCursor = (w.extCursor + 1) % extFieldCount
			return false, nil, w.focusCurrentExtra()
		}
	}

	// Forward to the active text input
	if ti := w.activeExtraInput(); ti != nil {
		var cmd tea.Cmd
		*ti, cmd = ti.Update(msg)
		return false, nil, cmd
	}
	return false, nil, nil
}

func (w *wizardModel) updateConfirm(msg tea.Msg) (bool, *InitOptions, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter", "y":
			opts := &InitOptions{
				ProjectRoot: w.selectedRoot,
				DataDir:     expandHome(strings.TrimSpace(w.dataInput.Value())),
			}
			switch w.selectedInterp {
			case interpConda:
				opts.CondaEnv = w.selectedDetail
			case interpPath:
				opts.Python = w.selectedDetail
			}
			opts.GPUs, _ = config.ParseGPUList(w.gpusInput.Value())
			return true, opts, nil
		case "n":
			// Restart wizard
			w.step = stepRoot
			w.rootInput.SetValue("")
			w.rootInput.Focus()
			w.selectedRoot = ""
			w.selectedInterp = ""
			w.selectedDetail = ""
			w.detailInput.SetValue("")
			w.gpusInput.SetValue("")
			w.dataInput.SetValue("")
			w.extCursor = extGPUs
			return false, nil, textinput.Blink
		}
	}
	return false, nil, nil
}

func (w *wizardModel) View() string {
	var b strings.Builder

	b.WriteString(wizardTitleStyle.Render("igpctl Setup"))
	b.WriteString("\n")
	b.WriteString(w.progressBar())
	b.WriteString("\n\n")

	switch w.step {
	case stepRoot:
		b.WriteString(wizardLabelStyle.Render("Project root:"))
		b.WriteString("\n")
		b.WriteString(w.rootInput.View())
		b.WriteString("\n\n")
		b.WriteString(wizardDimStyle.Render("Directory containing train_igp.py and eval_agent.py. Tab to complete."))
	case stepInterp:
		b.WriteString(wizardLabelStyle.Render("Python source:"))
		b.WriteString("\n")
		b.WriteString(w.interpList.View())
	case stepDetail:
		if w.selectedInterp == interpConda {
			b.WriteString(wizardLabelStyle.Render("Conda environment:"))
		} else {
			b.WriteString(wizardLabelStyle.Render("Interpreter path:"))
		}
		b.WriteString("\n")
		b.WriteString(w.detailInput.View())
		b.WriteString("\n\n")
		b.WriteString(wizardDimStyle.Render("Enter to confirm, Esc to go back."))
	case stepExtras:
		b.WriteString(wizardLabelStyle.Render("Defaults:"))
		b.WriteString("\n\n")
		b.WriteString(w.renderExtraInput(extGPUs, "GPUs", "Comma-separated CUDA device ids, empty schedules on all", &w.gpusInput))
		b.WriteString("\n")
		b.WriteString(w.renderExtraInput(extData, "Dataset dir", "Root of the episode datasets, empty to set later", &w.dataInput))
		b.WriteString("\n\n")
		b.WriteString(wizardDimStyle.Render("Tab to switch fields, Enter to continue, Esc to go back."))
	case stepConfirm:
		b.WriteString(wizardLabelStyle.Render("Confirm:"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("  Root:    %s\n", wizardValueStyle.Render(w.selectedRoot)))
		b.WriteString(fmt.Sprintf("  Python:  %s\n", wizardValueStyle.Render(w.interpSummary())))
		b.WriteString(fmt.Sprintf("  GPUs:    %s\n", wizardValueStyle.Render(w.gpuSummary())))
		if v := strings.TrimSpace(w.dataInput.Value()); v != "" {
			b.WriteString(fmt.Sprintf("  Data:    %s\n", wizardValueStyle.Render(v)))
		}
		b.WriteString("\n")
		b.WriteString(wizardDimStyle.Render("Enter to write config, n to restart, Esc to go back."))
	}

	return b.String()
}

func (w *wizardModel) interpSummary() string {
	switch w.selectedInterp {
	case interpConda:
		return "conda run -n " + w.selectedDetail
	case interpPath:
		return w.selectedDetail
	}
	return "python3 from PATH"
}

func (w *wizardModel) gpuSummary() string {
	v := strings.TrimSpace(w.gpusInput.Value())
	if v == "" {
		return "all"
	}
	return v
}

func (w *wizardModel) progressBar() string {
	steps := []struct {
		num  int
		name string
	}{
		{1, "Root"},
		{2, "Python"},
		{3, "Defaults"},
		{4, "Confirm"},
	}

	currentStep := 0
	switch w.step {
	case stepRoot:
		currentStep = 1
	case stepInterp, stepDetail:
		currentStep = 2
	case stepExtras:
		currentStep = 3
	case stepConfirm:
		currentStep = 4
	}

	var parts []string
	for _, s := range steps {
		label := fmt.Sprintf("%d. %s", s.num, s.name)
		if s.num == currentStep {
			parts = append(parts, wizardActiveStepStyle.Render(label))
		} else {
			parts = append(parts, wizardStepStyle.Render(label))
		}
	}

	return strings.Join(parts, wizardDimStyle.Render(" > "))
}

func (w *wizardModel) renderExtraInput(field extrasField, name, desc string, ti *textinput.Model) string {
	cursor := " "
	if w.extCursor == field {
		cursor = ">"
	}

	if w.extCursor == field {
		line := fmt.Sprintf("  %s %s: %s", cursor, name, ti.View())
		return selectedStyle.Render(line) + "\n" + wizardDimStyle.Render("      "+desc)
	}
	val := strings.TrimSpace(ti.Value())
	if val == "" {
		val = "(not set)"
	}
	line := fmt.Sprintf("  %s %s: %s", cursor, name, val)
	return line + "\n" + wizardDimStyle.Render("      "+desc)
}

func (w *wizardModel) loadInterpChoices() {
	items := []list.Item{
		interpItem{name: interpConda, description: "Launch children through conda run in a named environment"},
		interpItem{name: interpPath, description: "Point at an explicit python binary"},
		interpItem{name: interpSystem, description: "Use python3 from PATH"},
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(items, delegate, 60, 12)
	l.Title = ""
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	if w.width > 0 {
		l.SetWidth(w.width - 4)
	}
	if w.height > 0 {
		l.SetHeight(w.height - 10)
	}

	w.interpList = l
}

func (w *wizardModel) updateRootSuggestions() {
	val := w.rootInput.Value()
	if val == "" {
		w.rootInput.SetSuggestions(nil)
		return
	}

	expanded := expandHome(val)

	dir := expanded
	prefix := ""

	info, err := os.Stat(expanded)
	if err != nil || !info.IsDir() {
		dir = filepath.Dir(expanded)
		prefix = filepath.Base(expanded)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.rootInput.SetSuggestions(nil)
		return
	}

	var suggestions []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			continue
		}
		full := filepath.Join(dir, name)
		// Convert back to use ~ if original used ~
		if strings.HasPrefix(val, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				full = "~" + strings.TrimPrefix(full, home)
			}
		}
		suggestions = append(suggestions, full)
	}

	w.rootInput.SetSuggestions(suggestions)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

// suggestCondaEnv reads the name out of the project's environment.yml,
// returning "" when there is none to suggest.
func suggestCondaEnv(root string) string {
	env, err := condaenv.Load(filepath.Join(root, "environment.yml"))
	if err != nil {
		return ""
	}
	return env.Name
}

// wizardProgram adapts wizardModel to the tea.Model interface so that
// igpctl init can run the wizard standalone.
type wizardProgram struct {
	wizard wizardModel
	opts   *InitOptions
	done   bool
}

func (p wizardProgram) Init() tea.Cmd {
	return p.wizard.Init()
}

func (p wizardProgram) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		p.wizard.width = ws.Width
		p.wizard.height = ws.Height
	}

	done, opts, cmd := p.wizard.Update(msg)
	if done {
		p.opts = opts
		p.done = true
		return p, tea.Quit
	}
	return p, cmd
}

func (p wizardProgram) View() string {
	if p.done {
		return ""
	}
	return p.wizard.View()
}

// RunWizard drives the interactive setup wizard. A nil result with a
// nil error means the user cancelled.
func RunWizard() (*InitOptions, error) {
	p := tea.NewProgram(wizardProgram{wizard: newWizardModel()}, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	return finalModel.(wizardProgram).opts, nil
}
