package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/runner"
)

func TestRunItemMethods(t *testing.T) {
	record := &config.RunRecord{
		Name:       "utility_sweep-1.5",
		Experiment: "utility_sweep",
		Program:    config.ProgramTrain,
		GPU:        3,
	}

	item := runItem{
		record: record,
		status: health.StatusRunning,
		age:    "2h 30m",
	}

	t.Run("Title", func(t *testing.T) {
		if got := item.Title(); got != "utility_sweep-1.5" {
			t.Errorf("Title() = %q, want %q", got, "utility_sweep-1.5")
		}
	})

	t.Run("FilterValue", func(t *testing.T) {
		if got := item.FilterValue(); got != "utility_sweep-1.5" {
			t.Errorf("FilterValue() = %q, want %q", got, "utility_sweep-1.5")
		}
	})

	t.Run("Description", func(t *testing.T) {
		desc := item.Description()
		if !strings.Contains(desc, "✓") {
			t.Error("Description should contain running status icon")
		}
		if !strings.Contains(desc, "train") {
			t.Error("Description should contain program name")
		}
		if !strings.Contains(desc, "gpu 3") {
			t.Error("Description should contain GPU id")
		}
		if !strings.Contains(desc, "2h 30m") {
			t.Error("Description should contain run age")
		}
	})
}

func TestRunItemStatusIcons(t *testing.T) {
	tests := []struct {
		status health.Status
		icon   string
	}{
		{health.StatusRunning, "✓"},
		{health.StatusStale, "⚠"},
		{health.StatusFailed, "✗"},
		{health.StatusPending, "○"},
		{health.StatusFinished, "●"},
		{health.StatusStopped, "●"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			item := runItem{
				record: &config.RunRecord{Name: "test"},
				status: tt.status,
			}
			desc := item.Description()
			if !strings.Contains(desc, tt.icon) {
				t.Errorf("Description for status %v should contain %q", tt.status, tt.icon)
			}
		})
	}
}

func pickerRecords() []*config.RunRecord {
	return []*config.RunRecord{
		{
			Name:       "base_train-1",
			Experiment: "base_train",
			Program:    config.ProgramTrain,
			GPU:        0,
			Status:     config.StatusFinished,
		},
	}
}

func TestModelKeyHandling(t *testing.T) {
	t.Run("quit with q", func(t *testing.T) {
		m := NewPicker(pickerRecords(), nil)
		newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		model := newModel.(Model)

		if model.result.Action != ActionQuit {
			t.Errorf("Action = %v, want ActionQuit", model.result.Action)
		}
		if !model.quitting {
			t.Error("Model should be quitting")
		}
		if cmd == nil {
			t.Error("Should return tea.Quit command")
		}
	})

	t.Run("quit with esc", func(t *testing.T) {
		m := NewPicker(pickerRecords(), nil)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		model := newModel.(Model)

		if model.result.Action != ActionQuit {
			t.Errorf("Action = %v, want ActionQuit", model.result.Action)
		}
	})

	t.Run("logs with enter", func(t *testing.T) {
		m := NewPicker(pickerRecords(), nil)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		model := newModel.(Model)

		if model.result.Action != ActionLogs {
			t.Errorf("Action = %v, want ActionLogs", model.result.Action)
		}
		if model.result.Run == nil || model.result.Run.Name != "base_train-1" {
			t.Error("Result should carry the selected run")
		}
	})

	t.Run("stop with s", func(t *testing.T) {
		m := NewPicker(pickerRecords(), nil)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
		model := newModel.(Model)

		if model.result.Action != ActionStop {
			t.Errorf("Action = %v, want ActionStop", model.result.Action)
		}
	})

	t.Run("inspect with i", func(t *testing.T) {
		m := NewPicker(pickerRecords(), nil)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'i'}})
		model := newModel.(Model)

		if model.result.Action != ActionInspect {
			t.Errorf("Action = %v, want ActionInspect", model.result.Action)
		}
	})

	t.Run("window size update", func(t *testing.T) {
		m := NewPicker(pickerRecords(), nil)
		newModel, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 50})
		model := newModel.(Model)

		if model.width != 100 {
			t.Errorf("Width = %d, want 100", model.width)
		}
		if model.height != 50 {
			t.Errorf("Height = %d, want 50", model.height)
		}
		if cmd != nil {
			t.Error("Window size update should not return a command")
		}
	})
}

func TestNewPickerSkipsHeader(t *testing.T) {
	m := NewPicker(pickerRecords(), nil)

	if isHeaderSelected(&m.list) {
		t.Error("New picker should not start on a group header")
	}
	if _, ok := m.list.SelectedItem().(runItem); !ok {
		t.Error("New picker should start on a run item")
	}
}

func TestSkipHeadersMovesOffHeader(t *testing.T) {
	m := NewPicker(pickerRecords(), nil)

	m.list.Select(0)
	if !isHeaderSelected(&m.list) {
		t.Fatal("item 0 should be a group header")
	}

	skipHeaders(&m.list, 1)
	if isHeaderSelected(&m.list) {
		t.Error("skipHeaders should move the cursor off the header")
	}
	if m.list.Index() != 1 {
		t.Errorf("Index = %d, want 1", m.list.Index())
	}
}

func TestModelInit(t *testing.T) {
	m := Model{}
	cmd := m.Init()
	if cmd != nil {
		t.Error("Init() should return nil")
	}
}

func TestModelView(t *testing.T) {
	t.Run("normal view contains help", func(t *testing.T) {
		m := NewPicker(pickerRecords(), nil)
		view := m.View()

		if !strings.Contains(view, "[enter] Logs") {
			t.Error("View should contain logs help")
		}
		if !strings.Contains(view, "[s] Stop") {
			t.Error("View should contain stop help")
		}
		if !strings.Contains(view, "[i] Inspect") {
			t.Error("View should contain inspect help")
		}
		if !strings.Contains(view, "[q] Quit") {
			t.Error("View should contain quit help")
		}
	})

	t.Run("quitting view is empty", func(t *testing.T) {
		m := NewPicker(pickerRecords(), nil)
		m.quitting = true
		view := m.View()

		if view != "" {
			t.Errorf("Quitting view should be empty, got %q", view)
		}
	})
}

func TestModelResult(t *testing.T) {
	m := Model{
		result: PickerResult{
			Action: ActionLogs,
			Run: &config.RunRecord{
				Name: "test",
			},
		},
	}

	result := m.Result()
	if result.Action != ActionLogs {
		t.Errorf("Action = %v, want ActionLogs", result.Action)
	}
	if result.Run.Name != "test" {
		t.Errorf("Run.Name = %q, want %q", result.Run.Name, "test")
	}
}

func TestRunPickerEmptyRuns(t *testing.T) {
	result, err := RunPicker(nil, nil)
	if err != nil {
		t.Fatalf("RunPicker with no runs failed: %v", err)
	}

	if result.Action != ActionQuit {
		t.Errorf("Empty run list should return ActionQuit, got %v", result.Action)
	}
}

func TestSimplePicker(t *testing.T) {
	paths := &config.Paths{
		ConfigDir: "/etc/igpctl",
		StateDir:  "/var/lib/igpctl",
		RunsDir:   "/var/lib/igpctl/runs",
	}
	checker := health.NewChecker(paths, runner.NewMockRunner())

	t.Run("empty runs", func(t *testing.T) {
		output := SimplePicker(nil, checker)

		if !strings.Contains(output, "No runs found") {
			t.Error("Should indicate no runs found")
		}
		if !strings.Contains(output, "igpctl train") {
			t.Error("Should show how to start a run")
		}
	})

	t.Run("with runs", func(t *testing.T) {
		records := []*config.RunRecord{
			{
				Name:       "base_train-1",
				Experiment: "base_train",
				Program:    config.ProgramTrain,
				GPU:        0,
				Status:     config.StatusFinished,
			},
			{
				Name:       "ur_eval-1",
				Experiment: "ur_eval",
				Program:    config.ProgramEval,
				GPU:        1,
				Status:     config.StatusFailed,
			},
		}

		output := SimplePicker(records, checker)

		if !strings.Contains(output, "igpctl - Runs") {
			t.Error("Should contain title")
		}
		if !strings.Contains(output, "base_train-1") {
			t.Error("Should contain first run name")
		}
		if !strings.Contains(output, "ur_eval-1") {
			t.Error("Should contain second run name")
		}
		if !strings.Contains(output, "eval") {
			t.Error("Should contain program name")
		}
		if !strings.Contains(output, "GPU: 1") {
			t.Error("Should contain GPU id")
		}
		if !strings.Contains(output, "failed") {
			t.Error("Should contain summarized status")
		}
	})
}

func TestActionConstants(t *testing.T) {
	// Verify action constants have distinct values
	actions := []Action{ActionNone, ActionLogs, ActionStop, ActionInspect, ActionQuit}
	seen := make(map[Action]bool)

	for _, a := range actions {
		if seen[a] {
			t.Errorf("Duplicate action value: %v", a)
		}
		seen[a] = true
	}
}
