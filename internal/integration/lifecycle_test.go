// Real-child lifecycle tests. These exercise the launcher against the
// local runner with actual processes (shell stubs standing in for the
// Python interpreter).
//
// Run with: IGPCTL_INTEGRATION_TESTS=1 go test -v ./internal/integration/...
package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/launcher"
)

// TestLifecycle_DetachStop launches a long-lived child in the
// background, verifies liveness, then stops its process group.
func TestLifecycle_DetachStop(t *testing.T) {
	h := NewHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := h.Launcher().Launch(ctx, launcher.LaunchOptions{
		Name:    "lifecycle",
		Program: config.ProgramTrain,
		GPU:     -1,
		Detach:  true,
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	h.TrackRun("lifecycle")

	record := result.Record
	if record.PID <= 0 {
		t.Fatalf("expected a real PID, got %d", record.PID)
	}
	if record.Status != config.StatusRunning {
		t.Errorf("Status = %q, want %q", record.Status, config.StatusRunning)
	}

	alive, err := h.Runner().IsRunning(record.PID)
	if err != nil {
		t.Fatalf("IsRunning failed: %v", err)
	}
	if !alive {
		t.Fatal("child should be alive after detach")
	}

	checker := health.NewChecker(h.Paths(), h.Runner())
	if got := checker.Summary(record); got != health.StatusRunning {
		t.Errorf("health summary = %q, want %q", got, health.StatusRunning)
	}

	if err := h.Runner().Stop(ctx, record.PID, time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := h.WaitForExit("lifecycle", 5*time.Second); err != nil {
		t.Fatal(err)
	}
}

// TestLifecycle_ForegroundExit runs a child that exits immediately and
// checks that the run record is finalized from its exit code.
func TestLifecycle_ForegroundExit(t *testing.T) {
	h := NewHarness(t)

	tests := []struct {
		name       string
		script     string
		wantCode   int
		wantStatus string
	}{
		{"finished", "#!/bin/sh\nexit 0\n", 0, config.StatusFinished},
		{"failed", "#!/bin/sh\nexit 7\n", 7, config.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.StubInterpreter(tt.script)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result, err := h.Launcher().Launch(ctx, launcher.LaunchOptions{
				Name:    "fg-" + tt.name,
				Program: config.ProgramTrain,
				GPU:     -1,
				Quiet:   true,
			})
			if err != nil {
				t.Fatalf("Launch failed: %v", err)
			}

			if result.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", result.ExitCode, tt.wantCode)
			}

			record, err := h.GetRunRecord("fg-" + tt.name)
			if err != nil {
				t.Fatalf("loading record: %v", err)
			}
			if record.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", record.Status, tt.wantStatus)
			}
			if record.ExitCode == nil || *record.ExitCode != tt.wantCode {
				t.Errorf("recorded ExitCode = %v, want %d", record.ExitCode, tt.wantCode)
			}
		})
	}
}

// TestLifecycle_ArgvReachesChild checks the composed command line is
// what the child actually receives.
func TestLifecycle_ArgvReachesChild(t *testing.T) {
	h := NewHarness(t)
	h.StubInterpreter("#!/bin/sh\necho \"$@\"\n")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := h.Launcher().Launch(ctx, launcher.LaunchOptions{
		Name:    "argv-check",
		Program: config.ProgramEval,
		GPU:     1,
		Quiet:   true,
		Eval: &config.EvalSettings{
			Episodes: 25,
			Policy:   "ur",
		},
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	log := h.ReadLog("argv-check")
	for _, want := range []string{
		config.DefaultEvalScript,
		"--exp_name argv-check",
		"--eval_eps_total_num 25",
		"--eval_policy ur",
		"--gpu_id 1",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("child argv should contain %q, log: %q", want, log)
		}
	}
}

// TestLifecycle_StopKillsProcessGroup verifies that stopping a run also
// takes down processes the child spawned.
func TestLifecycle_StopKillsProcessGroup(t *testing.T) {
	h := NewHarness(t)
	h.StubInterpreter("#!/bin/sh\nsleep 60 &\nsleep 60\n")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := h.Launcher().Launch(ctx, launcher.LaunchOptions{
		Name:    "group-kill",
		Program: config.ProgramTrain,
		GPU:     -1,
		Detach:  true,
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	h.TrackRun("group-kill")

	if err := h.Runner().Stop(ctx, result.Record.PID, time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := h.WaitForExit("group-kill", 5*time.Second); err != nil {
		t.Fatal(err)
	}
}

// TestLifecycle_Relaunch restarts a finished run and confirms a fresh
// child uses the recorded command line.
func TestLifecycle_Relaunch(t *testing.T) {
	h := NewHarness(t)
	h.StubInterpreter("#!/bin/sh\nexit 0\n")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := h.Launcher().Launch(ctx, launcher.LaunchOptions{
		Name:    "restartable",
		Program: config.ProgramTrain,
		GPU:     -1,
		Quiet:   true,
	}); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	// Make the relaunched child hang around so we can observe it.
	h.StubInterpreter(defaultStub)

	record, err := h.Launcher().Relaunch(ctx, "restartable")
	if err != nil {
		t.Fatalf("Relaunch failed: %v", err)
	}
	h.TrackRun("restartable")

	if record.Status != config.StatusRunning {
		t.Errorf("Status = %q, want %q", record.Status, config.StatusRunning)
	}
	if record.Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", record.Restarts)
	}

	if err := h.Runner().Stop(ctx, record.PID, time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := h.WaitForExit("restartable", 5*time.Second); err != nil {
		t.Fatal(err)
	}
}
