package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/events"
)

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a running run",
	Long: `Sends SIGINT to the run's process group so the program can write
checkpoints and shut down cleanly, escalating to SIGKILL after the
grace period.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

var stopTimeout int

func init() {
	stopCmd.Flags().IntVarP(&stopTimeout, "timeout", "t", 30, "Graceful shutdown timeout in seconds (0 for immediate kill)")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	name := args[0]

	record, err := loadActiveRun(name)
	if err != nil {
		return err
	}

	run := getRunner()
	ctx := context.Background()
	grace := time.Duration(stopTimeout) * time.Second

	if stopTimeout > 0 {
		logInfo("Stopping run %s (timeout: %ds)...", name, stopTimeout)
	} else {
		logInfo("Stopping run %s...", name)
	}
	if err := run.Stop(ctx, record.PID, grace); err != nil {
		return errors.ProcessFailed("stop", err)
	}

	record.Status = config.StatusStopped
	if err := config.SaveRunRecord(paths().RunsDir, record); err != nil {
		return errors.DataError("failed to update run record", err)
	}

	eventLog := events.NewLogger(paths())
	_ = eventLog.LogEvent(events.EventStop, name, "")

	logSuccess("Stopped run %s", name)
	return nil
}
