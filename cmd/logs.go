package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/system"
)

var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "View a run's log output",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

var logsFollow bool
var logsLines int

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	name := args[0]

	record, err := loadRun(name)
	if err != nil {
		return err
	}

	runDir, err := paths().RunDir(record.Name)
	if err != nil {
		return err
	}
	logPath := config.LogPath(runDir)
	if _, err := os.Stat(logPath); err != nil {
		return errors.DataError(fmt.Sprintf("run %s has no log yet", name), err)
	}

	tailPath, err := exec.LookPath("tail")
	if err != nil {
		return errors.EnvError("tail not found: %v", err)
	}

	tailArgs := []string{
		"tail",
		"-n", fmt.Sprintf("%d", logsLines),
	}

	if logsFollow {
		tailArgs = append(tailArgs, "-f")
	}
	tailArgs = append(tailArgs, logPath)

	return syscall.Exec(tailPath, tailArgs, system.SafeEnviron())
}
