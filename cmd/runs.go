package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/health"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List all runs",
	RunE:  runRuns,
}

var runsProgram string

func init() {
	runsCmd.Flags().StringVar(&runsProgram, "program", "", "Only show runs of this program (train or eval)")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	runs, err := listRuns()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		logInfo("No runs found. Start one with: igpctl train <exp_name>")
		return nil
	}

	checker := health.NewChecker(paths(), getRunner())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEXPERIMENT\tPROGRAM\tGPU\tPID\tSTATUS\tAGE")
	fmt.Fprintln(w, "----\t----------\t-------\t---\t---\t------\t---")

	for _, record := range runs {
		if runsProgram != "" && record.Program != runsProgram {
			continue
		}

		pid := "-"
		if record.Active() && record.PID > 0 {
			pid = fmt.Sprintf("%d", record.PID)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			record.Name, record.Experiment, record.Program, record.GPU,
			pid, formatStatus(checker.Summary(record)), formatAge(record.CreatedAt))
	}

	return w.Flush()
}

func formatStatus(status health.Status) string {
	switch status {
	case health.StatusRunning:
		return "✓ running"
	case health.StatusFinished:
		return "● finished"
	case health.StatusFailed:
		return "✗ failed"
	case health.StatusStale:
		return "⚠ stale"
	case health.StatusStopped:
		return "● stopped"
	case health.StatusPending:
		return "○ pending"
	default:
		return string(status)
	}
}
