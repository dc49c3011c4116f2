// Package app provides the application context for igpctl.
// It allows dependency injection for testing.
package app

import (
	"sync"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/runner"
)

// App holds the application dependencies
type App struct {
	// Paths holds the configured paths
	Paths *config.Paths

	// Runner starts, signals and inspects child processes
	Runner runner.Runner

	mu     sync.Mutex
	cfg    *config.ToolConfig
	cfgErr error
	loaded bool
}

// Option is a function that configures the App
type Option func(*App)

// WithPaths sets custom paths
func WithPaths(paths *config.Paths) Option {
	return func(a *App) {
		a.Paths = paths
	}
}

// WithRunner sets a custom runner
func WithRunner(r runner.Runner) Option {
	return func(a *App) {
		a.Runner = r
	}
}

// WithToolConfig sets a pre-loaded tool configuration
func WithToolConfig(cfg *config.ToolConfig) Option {
	return func(a *App) {
		a.cfg = cfg
		a.loaded = true
	}
}

// New creates a new App with the given options.
// If a runner is not provided via WithRunner, the global one is used.
func New(opts ...Option) *App {
	app := &App{
		Paths: config.DefaultPaths(),
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.Runner == nil {
		app.Runner = runner.Global()
	}

	return app
}

// ToolConfig returns the tool configuration, loading igpctl.toml from
// the config directory on first use.
func (a *App) ToolConfig() (*config.ToolConfig, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		a.cfg, a.cfgErr = config.LoadToolConfig(a.Paths.ConfigDir)
		a.loaded = true
	}
	return a.cfg, a.cfgErr
}

// IsRunning checks whether a recorded process is still alive.
func (a *App) IsRunning(pid int) bool {
	if a.Runner == nil || pid <= 0 {
		return false
	}
	running, _ := a.Runner.IsRunning(pid)
	return running
}

// Default is the default application instance
var Default = New()

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault resets to the default application instance
func ResetDefault() {
	Default = New()
}
