package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/logging"
)

var rmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a run's directory and record",
	Long: `Deletes the run directory: record, captured log, options snapshot,
events and episode results. A run whose process is still alive is
refused unless --force, which stops the process group first.`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

var (
	rmForce   bool
	rmTimeout int
)

func init() {
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "Stop the run first if it is still running")
	rmCmd.Flags().IntVarP(&rmTimeout, "timeout", "t", 10, "Graceful stop timeout in seconds with --force")
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	name := args[0]

	record, err := loadRun(name)
	if err != nil {
		return err
	}

	if record.Active() && isRunning(record.PID) {
		if !rmForce {
			return errors.ValidationError(
				fmt.Sprintf("run %s is still running; stop it first or pass --force", name))
		}

		ctx, stop := signalContext()
		defer stop()

		logging.Debug("stopping run before removal", "name", name, "pid", record.PID)
		if err := getRunner().Stop(ctx, record.PID, time.Duration(rmTimeout)*time.Second); err != nil {
			return errors.ProcessFailed("stop", err)
		}
	}

	if err := config.DeleteRun(paths().RunsDir, name); err != nil {
		return errors.DataError(fmt.Sprintf("failed to remove run %s", name), err)
	}

	logSuccess("Removed run %s", name)
	return nil
}
