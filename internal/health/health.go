package health

import (
	"fmt"
	"os"
	"time"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/runner"
)

// Status represents the summarized health of a run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	StatusStopped  Status = "stopped"
	StatusStale    Status = "stale"

	// DefaultStaleLogAge is how long a running child's log may go
	// without writes before the run counts as stale. Training steps are
	// slow; eval episodes are slower.
	DefaultStaleLogAge = 15 * time.Minute
)

// CheckResult contains the results of health checks.
type CheckResult struct {
	ProcessAlive bool
	LogFresh     bool
	LogAge       time.Duration
	HasLog       bool
	HasOptions   bool
	HasResults   bool
	Uptime       string
}

// Checker performs health checks against run records.
type Checker struct {
	paths *config.Paths
	run   runner.Runner

	// StaleAfter overrides DefaultStaleLogAge when positive.
	StaleAfter time.Duration
}

// NewChecker creates a Checker over the given layout and runner.
func NewChecker(paths *config.Paths, run runner.Runner) *Checker {
	return &Checker{paths: paths, run: run}
}

func (c *Checker) staleAfter() time.Duration {
	if c.StaleAfter > 0 {
		return c.StaleAfter
	}
	return DefaultStaleLogAge
}

// Alive reports whether the record's process still exists.
func (c *Checker) Alive(record *config.RunRecord) bool {
	if record.PID <= 0 {
		return false
	}
	alive, err := c.run.IsRunning(record.PID)
	if err != nil {
		return false
	}
	return alive
}

// LogAge returns the time since the run's log was last written. The
// second return is false when the log does not exist yet.
func (c *Checker) LogAge(record *config.RunRecord) (time.Duration, bool) {
	runDir, err := c.paths.RunDir(record.Name)
	if err != nil {
		return 0, false
	}
	info, err := os.Stat(config.LogPath(runDir))
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

// Check performs all health checks for a run.
func (c *Checker) Check(record *config.RunRecord) *CheckResult {
	result := &CheckResult{}

	if record.Active() {
		result.ProcessAlive = c.Alive(record)
	}

	if age, ok := c.LogAge(record); ok {
		result.HasLog = true
		result.LogAge = age
		result.LogFresh = age < c.staleAfter()
	}

	if runDir, err := c.paths.RunDir(record.Name); err == nil {
		if _, err := os.Stat(config.OptionsPath(runDir)); err == nil {
			result.HasOptions = true
		}
		if _, err := os.Stat(config.EpisodesPath(runDir)); err == nil {
			result.HasResults = true
		}
	}

	result.Uptime = Age(record)
	return result
}

// Summary reduces a run's health to a single status. A record that
// claims a live process whose process is gone, or whose log has been
// silent past the stale threshold, is reported stale for the monitor
// and gc to act on.
func (c *Checker) Summary(record *config.RunRecord) Status {
	switch record.Status {
	case config.StatusFinished:
		return StatusFinished
	case config.StatusFailed:
		return StatusFailed
	case config.StatusStopped:
		return StatusStopped
	case config.StatusPending:
		return StatusPending
	}

	if !c.Alive(record) {
		return StatusStale
	}
	if age, ok := c.LogAge(record); ok && age >= c.staleAfter() {
		return StatusStale
	}
	return StatusRunning
}

// Age renders how long a run has existed, from its creation timestamp.
// Finished runs keep accruing "age"; callers decide when to show it.
func Age(record *config.RunRecord) string {
	t, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		return "unknown"
	}
	return formatDuration(time.Since(t))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
