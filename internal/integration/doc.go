// Package integration provides a test harness for integration tests
// that launch real child processes, plus mock-runner workflow tests
// covering complete code paths.
//
// Real-process tests are skipped unless the IGPCTL_INTEGRATION_TESTS
// environment variable is set. These tests require:
//   - a POSIX shell at /bin/sh
//   - permission to spawn and signal process groups
//
// # Test Harness
//
// Harness manages test environments:
//
//	func TestMyIntegration(t *testing.T) {
//	    h := integration.NewHarness(t) // Skips if env var not set
//
//	    result, err := h.Launcher().Launch(ctx, launcher.LaunchOptions{
//	        Name:    "my-run",
//	        Program: config.ProgramTrain,
//	        GPU:     -1,
//	        Detach:  true,
//	    })
//	    h.TrackRun("my-run")
//
//	    // Inspect the run, stop it...
//
//	    // Cleanup is automatic via t.Cleanup
//	}
//
// # Harness Features
//
// The harness provides:
//   - An isolated igpctl home and fake project checkout
//   - A shell stub standing in for the Python interpreter (StubInterpreter)
//   - Run tracking for cleanup (TrackRun)
//   - Exit polling (WaitForExit) and log access (ReadLog)
//   - Access to paths, tool config, runner and launcher
//
// # Running Integration Tests
//
//	IGPCTL_INTEGRATION_TESTS=1 go test -v ./internal/integration/...
package integration
