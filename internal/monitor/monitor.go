// Package monitor provides background supervision for launched runs.
package monitor

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/events"
	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/runner"
	"github.com/polonav/igpctl/internal/statusserver"
)

// DefaultInterval is the default re-check period.
const DefaultInterval = 30 * time.Second

// CheckResult holds the result of a single run check.
type CheckResult struct {
	Run    string
	Status health.Status
}

// Monitor periodically reconciles run records against live processes.
type Monitor struct {
	interval    time.Duration
	paths       *config.Paths
	launch      *launcher.Launcher
	checker     *health.Checker
	events      *events.Logger
	autoRestart bool
	watch       bool
	metrics     *statusserver.Metrics

	// last remembers each run's status from the previous sweep so
	// transitions can be counted.
	last map[string]string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAutoRestart enables automatic relaunch of failed runs, within the
// manifest's restart budget.
func WithAutoRestart(enabled bool) Option {
	return func(m *Monitor) {
		m.autoRestart = enabled
	}
}

// WithWatch wakes the monitor on run directory changes instead of
// waiting for the next tick.
func WithWatch(enabled bool) Option {
	return func(m *Monitor) {
		m.watch = enabled
	}
}

// WithMetrics feeds the given instruments on every sweep.
func WithMetrics(metrics *statusserver.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// New creates a Monitor.
func New(interval time.Duration, paths *config.Paths, run runner.Runner, l *launcher.Launcher, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		interval: interval,
		paths:    paths,
		launch:   l,
		checker:  health.NewChecker(paths, run),
		events:   events.NewLogger(paths),
		last:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the monitoring loop. It blocks until the context is
// canceled.
func (m *Monitor) Run(ctx context.Context) error {
	logging.Debug("starting run monitor",
		"interval", m.interval, "autoRestart", m.autoRestart, "watch", m.watch)

	var wake <-chan fsnotify.Event
	if m.watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			logging.Warn("fs watch unavailable", "error", err)
		} else {
			defer watcher.Close()
			_ = os.MkdirAll(m.paths.RunsDir, 0755)
			if err := watcher.Add(m.paths.RunsDir); err != nil {
				logging.Warn("failed to watch runs directory", "error", err)
			} else {
				wake = watcher.Events
				go func() {
					for err := range watcher.Errors {
						logging.Warn("fs watch error", "error", err)
					}
				}()
			}
		}
	}

	// Run an immediate sweep, then loop on interval.
	m.checkAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("run monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.checkAll(ctx)
		case ev := <-wake:
			logging.Debug("state change", "op", ev.Op.String(), "path", ev.Name)
			m.checkAll(ctx)
		}
	}
}

// checkAll sweeps every run record once.
func (m *Monitor) checkAll(ctx context.Context) []CheckResult {
	records, err := config.ListRuns(m.paths.RunsDir)
	if err != nil {
		logging.Warn("monitor failed to list runs", "error", err)
		return nil
	}

	var results []CheckResult
	running := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}

		status := m.checker.Summary(rec)
		results = append(results, CheckResult{Run: rec.Name, Status: status})

		if status == health.StatusRunning {
			running++
		}
		if status == health.StatusStale {
			m.reconcile(ctx, rec)
		}

		m.observeTransition(rec)
	}

	if m.metrics != nil {
		m.metrics.Running.Set(float64(running))
	}
	return results
}

// reconcile handles a stale run: a gone process is finalized as failed
// (a detached child's exit code is not observable after it reparents),
// a silent one is only reported.
func (m *Monitor) reconcile(ctx context.Context, rec *config.RunRecord) {
	if m.checker.Alive(rec) {
		_ = m.events.LogEvent(events.EventHealth, rec.Name, "stale: log silent")
		return
	}

	logging.Warn("run process is gone", "run", rec.Name, "pid", rec.PID)
	_ = m.events.LogEvent(events.EventHealth, rec.Name, "stale: process gone")
	if err := m.launch.Finalize(rec.Name, -1); err != nil {
		logging.Warn("failed to finalize run", "run", rec.Name, "error", err)
		return
	}

	if m.autoRestart {
		m.maybeRestart(ctx, rec)
	}
}

// maybeRestart relaunches a failed run when the manifest's restart
// budget allows it.
func (m *Monitor) maybeRestart(ctx context.Context, rec *config.RunRecord) {
	budget := m.restartBudget(rec)
	if rec.Restarts >= budget {
		if budget > 0 {
			logging.Warn("restart budget exhausted",
				"run", rec.Name, "restarts", rec.Restarts, "budget", budget)
		}
		return
	}

	logging.UserInfo("Auto-restarting run %s (attempt %d/%d)", rec.Name, rec.Restarts+1, budget)
	if _, err := m.launch.Relaunch(ctx, rec.Name); err != nil {
		logging.Warn("auto-restart failed", "run", rec.Name, "error", err)
		_ = m.events.LogEvent(events.EventError, rec.Name, "auto-restart failed: "+err.Error())
		return
	}
	if m.metrics != nil {
		m.metrics.Restarted.Inc()
	}
}

// restartBudget reads the restart policy from the run's manifest. Runs
// launched outside a manifest are never auto-restarted.
func (m *Monitor) restartBudget(rec *config.RunRecord) int {
	if rec.Manifest == "" {
		return 0
	}
	manifest, err := config.LoadManifest(m.paths.ManifestsDir, rec.Manifest)
	if err != nil {
		logging.Debug("manifest unavailable for restart policy",
			"run", rec.Name, "manifest", rec.Manifest, "error", err)
		return 0
	}
	return manifest.Restart.MaxRestarts
}

// observeTransition counts record status transitions into the metrics.
func (m *Monitor) observeTransition(rec *config.RunRecord) {
	prev := m.last[rec.Name]
	m.last[rec.Name] = rec.Status
	if m.metrics == nil || prev == rec.Status || prev == "" {
		return
	}

	switch rec.Status {
	case config.StatusFinished:
		m.metrics.Finished.Inc()
		m.observeDuration(rec)
	case config.StatusFailed:
		m.metrics.Failed.Inc()
		m.observeDuration(rec)
	}
}

func (m *Monitor) observeDuration(rec *config.RunRecord) {
	created, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		return
	}
	m.metrics.Duration.Observe(time.Since(created).Seconds())
}
