// Package errors provides typed errors with exit codes for igpctl.
//
// # Error Types
//
// IgpError is the base error type that wraps an error with an exit code:
//
//	type IgpError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
// Defined exit codes for different error categories:
//
//	ExitSuccess          = 0  // Success
//	ExitGeneralError     = 1  // General/unknown errors
//	ExitRunNotFound      = 2  // Run does not exist
//	ExitManifestNotFound = 3  // Experiment manifest does not exist
//	ExitGPUAllocation    = 4  // GPU slot allocation failure
//	ExitProcessFailed    = 5  // Child process operation failed
//	ExitConfigError      = 6  // Configuration error
//	ExitDataError        = 7  // Dataset or results file error
//	ExitEnvError         = 8  // Environment contract error
//
// # Error Constructors
//
// Use the provided constructors for consistent error creation:
//
//	errors.RunNotFound("ig-baseline")
//	errors.ManifestNotFound("sweep-utility")
//	errors.ProcessFailed("start", err)
//	errors.DataError("corrupt episode file", err)
//
// # Extracting Exit Codes
//
// Use GetExitCode to extract the exit code from an error chain:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
