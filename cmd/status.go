package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/invocation"
)

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show detailed status of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	name := args[0]

	record, err := loadRun(name)
	if err != nil {
		return err
	}

	checker := health.NewChecker(paths(), getRunner())
	result := checker.Check(record)

	fmt.Printf("Run: %s\n", record.Name)
	if record.ID != "" {
		fmt.Printf("ID: %s\n", record.ID)
	}
	fmt.Printf("Experiment: %s\n", record.Experiment)
	fmt.Printf("Program: %s\n", record.Program)
	if record.Manifest != "" {
		fmt.Printf("Manifest: %s\n", record.Manifest)
	}
	fmt.Printf("Status: %s\n", formatStatus(checker.Summary(record)))
	fmt.Printf("GPU: %d\n", record.GPU)

	if record.Active() && record.PID > 0 {
		fmt.Printf("PID: %d\n", record.PID)
	}
	if record.ExitCode != nil {
		fmt.Printf("Exit Code: %d\n", *record.ExitCode)
	}
	if record.Program == config.ProgramEval {
		fmt.Printf("Policy: %s\n", record.Policy)
		fmt.Printf("Episodes: %d\n", record.Episodes)
	}
	if record.Restarts > 0 {
		fmt.Printf("Restarts: %d\n", record.Restarts)
	}
	if record.GitRevision != "" {
		rev := record.GitRevision
		if record.GitDirty {
			rev += " (dirty)"
		}
		fmt.Printf("Git: %s\n", rev)
	}
	if record.EnvHash != "" {
		fmt.Printf("Env Hash: %s\n", record.EnvHash)
	}
	fmt.Printf("Work Dir: %s\n", record.WorkDir)
	fmt.Printf("Created: %s\n", record.CreatedAt)
	fmt.Printf("Command: %s\n", invocation.CommandLine(record.Argv))
	fmt.Println()

	// Health status
	fmt.Println("Health Checks:")
	if record.Active() {
		fmt.Printf("  Process: %s\n", boolStatus(result.ProcessAlive))
		fmt.Printf("  Uptime: %s\n", result.Uptime)
	}
	if result.HasLog {
		age := result.LogAge.Truncate(time.Second)
		if result.LogFresh {
			fmt.Printf("  Log: ✓ fresh (%s ago)\n", age)
		} else {
			fmt.Printf("  Log: ⚠ stale (%s ago)\n", age)
		}
	} else {
		fmt.Println("  Log: ✗ missing")
	}
	fmt.Printf("  Options Snapshot: %s\n", boolStatus(result.HasOptions))
	fmt.Printf("  Episode Results: %s\n", boolStatus(result.HasResults))

	return nil
}

func boolStatus(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
