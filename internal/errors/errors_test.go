package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIgpError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *IgpError
		wantMsg string
	}{
		{
			name:    "without cause",
			err:     New(ExitGeneralError, "something went wrong"),
			wantMsg: "something went wrong",
		},
		{
			name:    "with cause",
			err:     Wrap(ExitGeneralError, "operation failed", fmt.Errorf("underlying error")),
			wantMsg: "operation failed: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestIgpError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ExitGeneralError, "wrapped", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Without cause
	errNoCause := New(ExitGeneralError, "no cause")
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestIgpError_ExitCode(t *testing.T) {
	tests := []struct {
		code int
		name string
	}{
		{ExitSuccess, "success"},
		{ExitGeneralError, "general"},
		{ExitRunNotFound, "run not found"},
		{ExitManifestNotFound, "manifest not found"},
		{ExitGPUAllocation, "gpu allocation"},
		{ExitProcessFailed, "process failed"},
		{ExitConfigError, "config error"},
		{ExitDataError, "data error"},
		{ExitEnvError, "env error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "test")
			if got := err.ExitCode(); got != tt.code {
				t.Errorf("ExitCode() = %d, want %d", got, tt.code)
			}
		})
	}
}

func TestRunNotFound(t *testing.T) {
	err := RunNotFound("ig-baseline")

	if err.Code != ExitRunNotFound {
		t.Errorf("Code = %d, want %d", err.Code, ExitRunNotFound)
	}

	if err.Message != "run not found: ig-baseline" {
		t.Errorf("Message = %q, want %q", err.Message, "run not found: ig-baseline")
	}
}

func TestManifestNotFound(t *testing.T) {
	err := ManifestNotFound("sweep-utility")

	if err.Code != ExitManifestNotFound {
		t.Errorf("Code = %d, want %d", err.Code, ExitManifestNotFound)
	}

	if err.Message != "manifest not found: sweep-utility" {
		t.Errorf("Message = %q, want %q", err.Message, "manifest not found: sweep-utility")
	}
}

func TestGPUAllocationFailed(t *testing.T) {
	err := GPUAllocationFailed("all %d configured GPUs are busy", 4)

	if err.Code != ExitGPUAllocation {
		t.Errorf("Code = %d, want %d", err.Code, ExitGPUAllocation)
	}

	if err.Message != "all 4 configured GPUs are busy" {
		t.Errorf("Message = %q, want %q", err.Message, "all 4 configured GPUs are busy")
	}
}

func TestProcessFailed(t *testing.T) {
	cause := fmt.Errorf("exec error")
	err := ProcessFailed("start", cause)

	if err.Code != ExitProcessFailed {
		t.Errorf("Code = %d, want %d", err.Code, ExitProcessFailed)
	}

	if err.Message != "process start failed" {
		t.Errorf("Message = %q, want %q", err.Message, "process start failed")
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
}

func TestConfigError(t *testing.T) {
	cause := fmt.Errorf("invalid toml")
	err := ConfigError("failed to parse config", cause)

	if err.Code != ExitConfigError {
		t.Errorf("Code = %d, want %d", err.Code, ExitConfigError)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
}

func TestDataError(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := DataError("corrupt episode file", cause)

	if err.Code != ExitDataError {
		t.Errorf("Code = %d, want %d", err.Code, ExitDataError)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
}

func TestEnvError(t *testing.T) {
	err := EnvError("python interpreter %q not found in PATH", "python3.9")

	if err.Code != ExitEnvError {
		t.Errorf("Code = %d, want %d", err.Code, ExitEnvError)
	}

	if err.Message != `python interpreter "python3.9" not found in PATH` {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "IgpError",
			err:      RunNotFound("test"),
			wantCode: ExitRunNotFound,
		},
		{
			name:     "wrapped IgpError",
			err:      fmt.Errorf("outer: %w", ManifestNotFound("test")),
			wantCode: ExitManifestNotFound,
		},
		{
			name:     "regular error",
			err:      fmt.Errorf("some error"),
			wantCode: ExitGeneralError,
		},
		{
			name:     "nil error",
			err:      nil,
			wantCode: ExitGeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.wantCode {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestIs(t *testing.T) {
	target := fmt.Errorf("target error")
	wrapped := fmt.Errorf("wrapped: %w", target)

	if !Is(wrapped, target) {
		t.Error("Is() should return true for wrapped error")
	}

	other := fmt.Errorf("other error")
	if Is(wrapped, other) {
		t.Error("Is() should return false for different error")
	}
}

func TestAs(t *testing.T) {
	igpErr := RunNotFound("test")
	wrapped := fmt.Errorf("wrapped: %w", igpErr)

	var target *IgpError
	if !As(wrapped, &target) {
		t.Error("As() should return true for wrapped IgpError")
	}

	if target.Code != ExitRunNotFound {
		t.Errorf("target.Code = %d, want %d", target.Code, ExitRunNotFound)
	}

	// Test with non-IgpError
	regularErr := fmt.Errorf("regular error")
	if As(regularErr, &target) {
		t.Error("As() should return false for non-IgpError")
	}
}

func TestErrorChaining(t *testing.T) {
	// Test that our errors work with standard error unwrapping
	root := fmt.Errorf("root cause")
	middle := Wrap(ExitConfigError, "config error", root)
	outer := fmt.Errorf("operation failed: %w", middle)

	// Should be able to find root cause
	if !errors.Is(outer, root) {
		t.Error("errors.Is should find root cause")
	}

	// Should be able to extract IgpError
	var igpErr *IgpError
	if !errors.As(outer, &igpErr) {
		t.Error("errors.As should find IgpError")
	}

	if igpErr.Code != ExitConfigError {
		t.Errorf("Code = %d, want %d", igpErr.Code, ExitConfigError)
	}
}
