// Package integration provides a test harness for integration tests
// that launch real child processes through the local runner.
//
// Integration tests are skipped unless the IGPCTL_INTEGRATION_TESTS
// environment variable is set. These tests require:
// - a POSIX shell at /bin/sh
// - permission to spawn and signal process groups
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/runner"
)

// defaultStub is the interpreter stand-in used when a test doesn't
// install its own. It echoes its arguments into the captured log and
// stays alive until stopped.
const defaultStub = `#!/bin/sh
echo "stub-interpreter $@"
sleep 60
`

// Harness wires a throwaway igpctl home, a fake project checkout and a
// real local runner together for end-to-end launch tests.
type Harness struct {
	t        *testing.T
	tmpDir   string
	paths    *config.Paths
	cfg      *config.ToolConfig
	run      runner.Runner
	launcher *launcher.Launcher
	runs     []string // tracked for cleanup
}

// NewHarness creates a new test harness.
// It will skip the test if IGPCTL_INTEGRATION_TESTS is not set.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	if os.Getenv("IGPCTL_INTEGRATION_TESTS") == "" {
		t.Skip("integration tests disabled (set IGPCTL_INTEGRATION_TESTS=1 to enable)")
	}

	tmpDir := t.TempDir()
	paths := config.PathsUnder(filepath.Join(tmpDir, "igpctl"))

	for _, dir := range []string{
		paths.ConfigDir,
		paths.ManifestsDir,
		paths.StateDir,
		paths.RunsDir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	// A fake checkout: the launch scripts exist but the interpreter is
	// a shell stub, so no Python is needed on the host.
	projectRoot := filepath.Join(tmpDir, "project")
	if err := os.MkdirAll(projectRoot, 0755); err != nil {
		t.Fatalf("Failed to create project root: %v", err)
	}
	for _, script := range []string{config.DefaultTrainScript, config.DefaultEvalScript} {
		if err := os.WriteFile(filepath.Join(projectRoot, script), []byte("# stub\n"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", script, err)
		}
	}

	cfg := &config.ToolConfig{
		Python:      filepath.Join(tmpDir, "python3"),
		ProjectRoot: projectRoot,
		GPUs:        []int{0, 1},
	}
	if err := config.SaveToolConfig(paths.ConfigDir, cfg); err != nil {
		t.Fatalf("Failed to write tool config: %v", err)
	}

	run := runner.NewLocalRunner()

	h := &Harness{
		t:        t,
		tmpDir:   tmpDir,
		paths:    paths,
		cfg:      cfg,
		run:      run,
		launcher: launcher.New(paths, cfg, run),
		runs:     make([]string, 0),
	}
	h.StubInterpreter(defaultStub)

	t.Cleanup(h.Cleanup)

	return h
}

// Paths returns the test paths.
func (h *Harness) Paths() *config.Paths {
	return h.paths
}

// ToolConfig returns the tool configuration.
func (h *Harness) ToolConfig() *config.ToolConfig {
	return h.cfg
}

// Runner returns the local process runner.
func (h *Harness) Runner() runner.Runner {
	return h.run
}

// Launcher returns a launcher over the harness state.
func (h *Harness) Launcher() *launcher.Launcher {
	return h.launcher
}

// StubInterpreter replaces the fake python with a shell script. The
// script receives the launch script path and the composed child flags
// as its arguments.
func (h *Harness) StubInterpreter(script string) {
	h.t.Helper()

	if err := os.WriteFile(h.cfg.Python, []byte(script), 0755); err != nil {
		h.t.Fatalf("Failed to write stub interpreter: %v", err)
	}
}

// AddManifest writes an experiment manifest into the manifests dir.
func (h *Harness) AddManifest(name string, m *config.Manifest) {
	h.t.Helper()

	if m.Name == "" {
		m.Name = name
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		h.t.Fatalf("Failed to marshal manifest: %v", err)
	}

	path := filepath.Join(h.paths.ManifestsDir, name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		h.t.Fatalf("Failed to write manifest: %v", err)
	}
}

// TrackRun registers a run for cleanup.
func (h *Harness) TrackRun(name string) {
	h.runs = append(h.runs, name)
}

// Cleanup stops every tracked run's child. Run directories live under
// t.TempDir and go away with it.
func (h *Harness) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, name := range h.runs {
		record, err := config.LoadRunRecord(h.paths.RunsDir, name)
		if err != nil || record.PID <= 0 {
			continue
		}
		if err := h.run.Stop(ctx, record.PID, time.Second); err != nil {
			h.t.Logf("Warning: failed to stop run %s (pid %d): %v", name, record.PID, err)
		}
	}
}

// WaitForExit polls until the run's child is gone.
func (h *Harness) WaitForExit(name string, timeout time.Duration) error {
	record, err := config.LoadRunRecord(h.paths.RunsDir, name)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		alive, err := h.run.IsRunning(record.PID)
		if err != nil {
			return err
		}
		if !alive {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("run %s (pid %d) still alive after %v", name, record.PID, timeout)
}

// RequireRunning skips the test if the named run's child is not alive.
func (h *Harness) RequireRunning(name string) {
	h.t.Helper()

	record, err := config.LoadRunRecord(h.paths.RunsDir, name)
	if err != nil {
		h.t.Skipf("failed to load run %s: %v", name, err)
	}
	alive, err := h.run.IsRunning(record.PID)
	if err != nil {
		h.t.Skipf("failed to check run %s: %v", name, err)
	}
	if !alive {
		h.t.Skipf("run %s is not running", name)
	}
}

// GetRunRecord loads a run record.
func (h *Harness) GetRunRecord(name string) (*config.RunRecord, error) {
	return config.LoadRunRecord(h.paths.RunsDir, name)
}

// ReadLog returns the run's captured child output.
func (h *Harness) ReadLog(name string) string {
	h.t.Helper()

	runDir, err := h.paths.RunDir(name)
	if err != nil {
		h.t.Fatalf("Failed to resolve run dir for %s: %v", name, err)
	}
	data, err := os.ReadFile(config.LogPath(runDir))
	if err != nil {
		h.t.Fatalf("Failed to read log for %s: %v", name, err)
	}
	return string(data)
}
