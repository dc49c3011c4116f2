// Package testutil provides test utilities for integration tests
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polonav/igpctl/internal/app"
	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/runner"
)

// TestEnv holds the test environment
type TestEnv struct {
	T       *testing.T
	TmpDir  string
	Paths   *config.Paths
	Config  *config.ToolConfig
	Runner  *runner.MockRunner
	App     *app.App
	cleanup func()
}

// NewTestEnv creates a new test environment with a mock runner and an
// isolated state directory.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

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

	// A fake project checkout with the launch scripts present.
	projectRoot := filepath.Join(tmpDir, "project")
	if err := os.MkdirAll(projectRoot, 0755); err != nil {
		t.Fatalf("Failed to create project root: %v", err)
	}
	for _, script := range []string{"train_igp.py", "eval_agent.py"} {
		if err := os.WriteFile(filepath.Join(projectRoot, script), []byte("# stub\n"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", script, err)
		}
	}

	toolConfig := &config.ToolConfig{
		Python:      "/usr/bin/python3",
		ProjectRoot: projectRoot,
		GPUs:        []int{0, 1},
	}
	if err := config.SaveToolConfig(paths.ConfigDir, toolConfig); err != nil {
		t.Fatalf("Failed to write tool config: %v", err)
	}

	mockRunner := runner.NewMockRunner()

	testApp := app.New(
		app.WithPaths(paths),
		app.WithRunner(mockRunner),
		app.WithToolConfig(toolConfig),
	)

	// Save original default and set test app
	originalDefault := app.Default
	app.SetDefault(testApp)

	env := &TestEnv{
		T:       t,
		TmpDir:  tmpDir,
		Paths:   paths,
		Config:  toolConfig,
		Runner:  mockRunner,
		App:     testApp,
		cleanup: func() {
			app.SetDefault(originalDefault)
		},
	}

	return env
}

// Cleanup restores the original app default
func (e *TestEnv) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

// AddManifest writes an experiment manifest into the test environment.
func (e *TestEnv) AddManifest(name string, manifest *config.Manifest) {
	e.T.Helper()

	if manifest.Name == "" {
		manifest.Name = name
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		e.T.Fatalf("Failed to marshal manifest: %v", err)
	}

	path := filepath.Join(e.Paths.ManifestsDir, name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		e.T.Fatalf("Failed to write manifest: %v", err)
	}
}

// AddRun persists a run record. Records that claim a live process get
// one registered with the mock runner unless the caller already set a
// PID.
func (e *TestEnv) AddRun(record *config.RunRecord) {
	e.T.Helper()

	if record.CreatedAt == "" {
		record.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if record.Active() && record.PID == 0 {
		record.PID = e.Runner.AddProc(record.Name, true)
	}

	if err := config.SaveRunRecord(e.Paths.RunsDir, record); err != nil {
		e.T.Fatalf("Failed to save run record: %v", err)
	}
}

// WriteRunFile writes a file into a run's directory.
func (e *TestEnv) WriteRunFile(run, name, content string) string {
	e.T.Helper()

	runDir, err := e.Paths.RunDir(run)
	if err != nil {
		e.T.Fatalf("Invalid run name %q: %v", run, err)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		e.T.Fatalf("Failed to create run directory: %v", err)
	}

	path := filepath.Join(runDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		e.T.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// GetRun loads a run record, or nil if it doesn't exist.
func (e *TestEnv) GetRun(name string) *config.RunRecord {
	e.T.Helper()

	record, err := config.LoadRunRecord(e.Paths.RunsDir, name)
	if err != nil {
		return nil
	}
	return record
}

// RunExists checks if a run exists
func (e *TestEnv) RunExists(name string) bool {
	return config.RunExists(e.Paths.RunsDir, name)
}

// DefaultManifest returns a basic training manifest for testing
func DefaultManifest() *config.Manifest {
	return &config.Manifest{
		Name:        "base_train",
		Description: "Baseline training run",
		Program:     config.ProgramTrain,
		Options: map[string]any{
			"net": map[string]any{"c0": 48},
		},
	}
}

// DefaultEvalManifest returns a basic evaluation manifest for testing
func DefaultEvalManifest() *config.Manifest {
	return &config.Manifest{
		Name:        "base_eval",
		Description: "Baseline evaluation run",
		Program:     config.ProgramEval,
		Eval: &config.EvalSettings{
			Episodes: 200,
			Policy:   "ur",
			NoRender: true,
		},
	}
}

// DefaultRunRecord returns a minimal finished training record.
func DefaultRunRecord(name string) *config.RunRecord {
	zero := 0
	return &config.RunRecord{
		Name:       name,
		Experiment: name,
		Program:    config.ProgramTrain,
		GPU:        0,
		Argv:       []string{"python3", "train_igp.py", "--exp_name", name},
		WorkDir:    "/tmp",
		CreatedAt:  time.Now().Format(time.RFC3339),
		Status:     config.StatusFinished,
		ExitCode:   &zero,
	}
}
