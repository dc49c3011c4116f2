package errors

import (
	"errors"
	"fmt"
)

// Exit codes for igpctl
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitRunNotFound      = 2
	ExitManifestNotFound = 3
	ExitGPUAllocation    = 4
	ExitProcessFailed    = 5
	ExitConfigError      = 6
	ExitDataError        = 7
	ExitEnvError         = 8
)

// IgpError is the base error type for igpctl
type IgpError struct {
	Code    int
	Message string
	Cause   error
}

func (e *IgpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *IgpError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *IgpError) ExitCode() int {
	return e.Code
}

// New creates a new IgpError
func New(code int, message string) *IgpError {
	return &IgpError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an IgpError
func Wrap(code int, message string, cause error) *IgpError {
	return &IgpError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors

// RunNotFound returns an error for a missing run record
func RunNotFound(name string) *IgpError {
	return New(ExitRunNotFound, fmt.Sprintf("run not found: %s", name))
}

// ManifestNotFound returns an error for a missing experiment manifest
func ManifestNotFound(name string) *IgpError {
	return New(ExitManifestNotFound, fmt.Sprintf("manifest not found: %s", name))
}

// GPUAllocationFailed returns an error for GPU slot allocation failure
func GPUAllocationFailed(format string, args ...any) *IgpError {
	return New(ExitGPUAllocation, fmt.Sprintf(format, args...))
}

// ProcessFailed returns an error for child process operations
func ProcessFailed(op string, cause error) *IgpError {
	return Wrap(ExitProcessFailed, fmt.Sprintf("process %s failed", op), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *IgpError {
	return Wrap(ExitConfigError, message, cause)
}

// DataError returns an error for dataset and results file issues
func DataError(message string, cause error) *IgpError {
	return Wrap(ExitDataError, message, cause)
}

// EnvError returns an error for environment contract issues
func EnvError(format string, args ...any) *IgpError {
	return New(ExitEnvError, fmt.Sprintf(format, args...))
}

// RunNotRunning returns an error when a run exists but its process is gone
func RunNotRunning(name string) *IgpError {
	return New(ExitGeneralError, fmt.Sprintf("run %s is not running", name))
}

// OverrideError returns an error for malformed option overrides
func OverrideError(message string, cause error) *IgpError {
	return Wrap(ExitGeneralError, message, cause)
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *IgpError {
	return New(ExitGeneralError, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var igpErr *IgpError
	if errors.As(err, &igpErr) {
		return igpErr.ExitCode()
	}
	return ExitGeneralError
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
