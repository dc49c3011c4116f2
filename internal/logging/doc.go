// Package logging provides logging utilities for igpctl.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("launching run", "name", name, "program", program)
//	logging.Warn("log file stale", "run", name, "age", age)
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Composing invocation for %s...", expName)
//	logging.UserSuccess("Run %s started (pid %d)", name, pid)
//	logging.UserWarning("GPU %d is already claimed", id)
//	logging.UserError("Failed to launch run: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
