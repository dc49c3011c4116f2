package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the shared structured logger. Commands and packages use the
// package-level helpers below instead of touching it directly, except
// where a derived logger is needed (see With).
var Logger *slog.Logger

// Verbose reports whether debug-level logging is enabled.
var Verbose bool

func init() {
	Setup(false, false, nil)
}

// Setup configures the shared logger. verbose enables debug level,
// jsonOutput switches to JSON records, and w overrides the output
// destination (nil means stderr).
func Setup(verbose, jsonOutput bool, w io.Writer) {
	Verbose = verbose

	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
}

// Debug logs a debug-level message. Silent unless Setup was called
// with verbose=true.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning-level message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error-level message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// With returns a derived logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}
