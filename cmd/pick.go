package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/tui"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactive run picker",
	Long: `Opens an interactive TUI for browsing runs, grouped by experiment.

Use arrow keys or j/k to navigate, / to filter, Enter to select.

Actions:
  Enter  - Follow the selected run's log
  s      - Stop the selected run
  i      - Show detailed status
  q/Esc  - Quit

Pass --plain for a non-interactive listing, for terminals without
TUI support.`,
	RunE: runPick,
}

var pickPlain bool

func init() {
	pickCmd.Flags().BoolVar(&pickPlain, "plain", false, "Print a plain run listing instead of the TUI")
	rootCmd.AddCommand(pickCmd)
}

func runPick(cmd *cobra.Command, args []string) error {
	records, err := listRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	checker := health.NewChecker(paths(), getRunner())

	if pickPlain {
		fmt.Print(tui.SimplePicker(records, checker))
		return nil
	}

	if len(records) == 0 {
		logInfo("No runs found. Start one with: igpctl train <exp_name>")
		return nil
	}

	logging.Debug("picker mode started")

	result, err := tui.RunPicker(records, checker)
	if err != nil {
		return fmt.Errorf("picker error: %w", err)
	}

	logging.Debug("picker result", "action", result.Action)

	switch result.Action {
	case tui.ActionLogs:
		if result.Run != nil {
			// Picking a run means watching it
			logsFollow = true
			return runLogs(cmd, []string{result.Run.Name})
		}

	case tui.ActionStop:
		if result.Run != nil {
			return runStop(cmd, []string{result.Run.Name})
		}

	case tui.ActionInspect:
		if result.Run != nil {
			return runStatus(cmd, []string{result.Run.Name})
		}

	case tui.ActionQuit:
		// Just exit cleanly
	}

	return nil
}
