// Package tui provides terminal user interface components for igpctl.
//
// This package uses the Bubble Tea framework to create interactive terminal
// interfaces, primarily the run picker behind igpctl pick.
//
// # Run Picker
//
// The picker displays runs grouped by experiment and allows selection:
//
//	checker := health.NewChecker(paths, run)
//	result, err := tui.RunPicker(records, checker)
//	switch result.Action {
//	case tui.ActionLogs:
//	    // Follow result.Run's log
//	case tui.ActionStop:
//	    // Stop result.Run
//	case tui.ActionInspect:
//	    // Show result.Run's status detail
//	case tui.ActionQuit:
//	    // Exit
//	}
//
// # Picker Features
//
//   - Lists all runs grouped by experiment, sweep variants together
//   - Keyboard navigation (j/k or arrows), headers auto-skipped
//   - Quick actions: Enter (logs), s (stop), i (inspect), q (quit)
//   - Color-coded status indicators fed by the health checker
//
// # Setup Wizard
//
// RunWizard walks through first-time setup for igpctl init: project
// root, interpreter source, default GPUs and dataset directory. It
// returns nil when the user cancels.
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - UI components
//   - github.com/charmbracelet/lipgloss - Styling
package tui
