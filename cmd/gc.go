package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/events"
	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/logging"
)

var gcForce bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reconcile run records with live processes",
	Long: `Reconciles recorded run state with reality and cleans up what no
longer matches.

Without --force, prints what would be cleaned (dry run).
With --force, finalizes stale records and removes orphaned directories.

Detects:
  - Stale records: runs recorded as running whose process is gone
  - Orphaned directories: run directories without a readable record`,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "Actually reconcile and remove (default is dry run)")
	rootCmd.AddCommand(gcCmd)
}

// gcResult tracks what gc found and would/did clean up.
type gcResult struct {
	staleRuns    []*config.RunRecord // recorded as running, process gone
	orphanedDirs []string            // run directories with no readable record
}

func (r *gcResult) empty() bool {
	return len(r.staleRuns) == 0 && len(r.orphanedDirs) == 0
}

func runGC(cmd *cobra.Command, args []string) error {
	p := paths()

	records, err := listRuns()
	if err != nil {
		return err
	}

	dirs, err := config.RunDirNames(p.RunsDir)
	if err != nil {
		return errors.DataError("failed to scan runs directory", err)
	}

	result := collectGarbage(records, dirs, health.NewChecker(p, getRunner()))

	if result.empty() {
		logInfo("No stale runs or orphaned directories found")
		return nil
	}

	if !gcForce {
		printGCDryRun(result)
		return nil
	}

	return executeGC(result)
}

// collectGarbage compares run records, run directories and live
// processes. A record counts as stale only when its process is gone;
// a silent-but-alive run is the monitor's business, not gc's.
func collectGarbage(records []*config.RunRecord, dirs []string, checker *health.Checker) *gcResult {
	result := &gcResult{}

	recorded := make(map[string]bool, len(records))
	for _, rec := range records {
		recorded[rec.Name] = true
		if rec.Active() && !checker.Alive(rec) {
			result.staleRuns = append(result.staleRuns, rec)
		}
	}

	for _, dir := range dirs {
		if !recorded[dir] {
			result.orphanedDirs = append(result.orphanedDirs, dir)
		}
	}

	return result
}

func printGCDryRun(result *gcResult) {
	fmt.Println("Dry run (use --force to actually clean up):")
	fmt.Println()

	if len(result.staleRuns) > 0 {
		fmt.Println("Stale records (process gone, would be marked failed):")
		for _, rec := range result.staleRuns {
			fmt.Printf("  %s (pid %d)\n", rec.Name, rec.PID)
		}
		fmt.Println()
	}

	if len(result.orphanedDirs) > 0 {
		fmt.Println("Orphaned run directories (no readable record, would be removed):")
		for _, dir := range result.orphanedDirs {
			fmt.Printf("  %s\n", dir)
		}
		fmt.Println()
	}
}

func executeGC(result *gcResult) error {
	p := paths()

	var l *launcher.Launcher
	if len(result.staleRuns) > 0 {
		var err error
		l, err = newLauncher()
		if err != nil {
			return err
		}
	}

	eventLog := events.NewLogger(p)
	for _, rec := range result.staleRuns {
		logInfo("Marking stale run failed: %s (pid %d)", rec.Name, rec.PID)
		if err := l.Finalize(rec.Name, -1); err != nil {
			logWarning("Failed to finalize run %s: %v", rec.Name, err)
			continue
		}
		_ = eventLog.LogEvent(events.EventGC, rec.Name, "stale record reconciled")
	}

	for _, dir := range result.orphanedDirs {
		logInfo("Removing orphaned run directory: %s", dir)
		if err := config.DeleteRun(p.RunsDir, dir); err != nil {
			logWarning("Failed to remove %s: %v", dir, err)
		} else {
			logging.Debug("removed orphaned run directory", "name", dir)
		}
	}

	logSuccess("Garbage collection complete")
	return nil
}
