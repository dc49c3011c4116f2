// Package app provides the application context for igpctl.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
// The App struct holds core dependencies:
//
//	type App struct {
//	    Paths  *config.Paths // File system paths
//	    Runner runner.Runner // Child process backend
//	}
//
// plus the lazily loaded tool configuration (igpctl.toml), available
// through ToolConfig().
//
// # Creating an App
//
// Use New with functional options:
//
//	// Production usage
//	app := app.New()
//
//	// Testing with custom dependencies
//	app := app.New(
//	    app.WithPaths(testPaths),
//	    app.WithRunner(mockRunner),
//	    app.WithToolConfig(testConfig),
//	)
//
// # Available Options
//
//	WithPaths(paths)      // Custom path configuration
//	WithRunner(runner)    // Custom process runner
//	WithToolConfig(cfg)   // Pre-loaded tool configuration
package app
