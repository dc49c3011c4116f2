package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polonav/igpctl/internal/app"
	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/overrides"
	"github.com/polonav/igpctl/internal/runner"
)

// paths returns the configured paths.
// This is a helper to reduce repetition in commands.
func paths() *config.Paths {
	return app.Default.Paths
}

// getRunner returns the application's process runner.
func getRunner() runner.Runner {
	return app.Default.Runner
}

// toolConfig returns the loaded tool configuration.
func toolConfig() (*config.ToolConfig, error) {
	return app.Default.ToolConfig()
}

// newLauncher builds a Launcher over the application dependencies.
func newLauncher() (*launcher.Launcher, error) {
	cfg, err := toolConfig()
	if err != nil {
		return nil, err
	}
	return launcher.New(paths(), cfg, getRunner()), nil
}

// loadRun loads a run record or returns a RunNotFound error.
func loadRun(name string) (*config.RunRecord, error) {
	record, err := config.LoadRunRecord(paths().RunsDir, name)
	if err != nil {
		return nil, errors.RunNotFound(name)
	}
	return record, nil
}

// loadActiveRun loads a run record and verifies it claims a live child.
// Returns RunNotFound if the run doesn't exist, or RunNotRunning if it
// exists but has already reached a terminal status.
func loadActiveRun(name string) (*config.RunRecord, error) {
	record, err := loadRun(name)
	if err != nil {
		return nil, err
	}

	if !record.Active() {
		return nil, errors.RunNotRunning(name)
	}

	return record, nil
}

// listRuns lists all run records.
func listRuns() ([]*config.RunRecord, error) {
	return config.ListRuns(paths().RunsDir)
}

// isRunning reports whether a recorded PID is still alive.
func isRunning(pid int) bool {
	return app.Default.IsRunning(pid)
}

// signalContext returns a context canceled on SIGINT/SIGTERM. Children
// run in their own process groups, so the terminal won't interrupt
// them directly; commands supervising a foreground child watch this
// context and forward the signal to the group.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// gatherOverrides merges a comma-joined --options list, repeated
// -o/--option flags and positional KEY=value arguments, in that order.
// Later sources win on key collisions, matching the child programs'
// own option precedence.
func gatherOverrides(optionsList string, optionFlags, positional []string) (*overrides.Set, error) {
	set := overrides.NewSet()

	if optionsList != "" {
		parsed, err := overrides.ParseList(optionsList)
		if err != nil {
			return nil, errors.OverrideError("invalid --options list", err)
		}
		set.Merge(parsed)
	}

	if len(optionFlags) > 0 {
		parsed, err := overrides.ParseArgs(optionFlags)
		if err != nil {
			return nil, errors.OverrideError("invalid --option flag", err)
		}
		set.Merge(parsed)
	}

	if len(positional) > 0 {
		parsed, err := overrides.ParseArgs(positional)
		if err != nil {
			return nil, errors.OverrideError("invalid override argument", err)
		}
		set.Merge(parsed)
	}

	return set, nil
}

// formatAge renders the time elapsed since an RFC3339 timestamp.
func formatAge(createdAt string) string {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return "-"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}
