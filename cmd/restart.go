package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Restart a stopped or failed run",
	Long: `Relaunches a run with its recorded command line, working directory
and environment. The run keeps its name, options snapshot and log; the
restart is detached and counted in the run record.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestart,
}

func init() {
	rootCmd.AddCommand(restartCmd)
}

func runRestart(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx, stop := signalContext()
	defer stop()

	record, err := loadRun(name)
	if err != nil {
		return err
	}

	l, err := newLauncher()
	if err != nil {
		return err
	}

	// A record can claim a live process that is long gone (machine
	// reboot, kill -9). Finalize it as failed so the relaunch isn't
	// refused for a phantom.
	if record.Active() {
		if isRunning(record.PID) {
			logInfo("Run %s is already running", name)
			return nil
		}
		logWarning("Run %s claims PID %d but the process is gone", name, record.PID)
		if err := l.Finalize(name, -1); err != nil {
			return err
		}
	}

	record, err = l.Relaunch(ctx, name)
	if err != nil {
		return err
	}

	logSuccess("Restarted run %s", name)
	fmt.Printf("  PID: %d\n", record.PID)
	fmt.Printf("  Restarts: %d\n", record.Restarts)
	fmt.Printf("  Logs: igpctl logs %s -f\n", name)
	return nil
}
