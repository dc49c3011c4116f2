package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/polonav/igpctl/internal/testutil"
)

func executeCommand(args ...string) (string, string, error) {
	// Reset flag values before each test
	trainOptions = nil
	trainOptionList = ""
	trainConfig = ""
	trainGPU = -1
	trainDetach = false
	trainDryRun = false
	trainFollow = false
	logsFollow = false
	logsLines = 50
	gcForce = false
	pickPlain = false
	runsProgram = ""
	initRoot = ""
	initPython = ""
	initCondaEnv = ""
	initGPUs = ""
	initData = ""
	initForce = false
	monitorPrintUnit = false
	verbose = false
	jsonOutput = false

	cmd := rootCmd
	cmd.SetArgs(args)

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.Execute()

	// Reset args for next test
	cmd.SetArgs(nil)
	cmd.SetOut(nil)
	cmd.SetErr(nil)

	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	if !strings.Contains(stdout, "igpctl") {
		t.Error("Help output should contain 'igpctl'")
	}

	for _, sub := range []string{"train", "eval", "runs", "sweep", "monitor"} {
		if !strings.Contains(stdout, sub) {
			t.Errorf("Help output should list the %s command", sub)
		}
	}
}

func TestTrainCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("train", "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	for _, flag := range []string{"--option", "--options", "--config", "--gpu", "--detach", "--dry-run"} {
		if !strings.Contains(stdout, flag) {
			t.Errorf("Train help should mention %s flag", flag)
		}
	}

	if !strings.Contains(stdout, "train_igp.py") {
		t.Error("Train help should name the child program")
	}
}

func TestEvalCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("eval", "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	for _, flag := range []string{"--episodes", "--policy", "--gt-semantic", "--save-video", "--skip-existing"} {
		if !strings.Contains(stdout, flag) {
			t.Errorf("Eval help should mention %s flag", flag)
		}
	}
}

func TestLogsCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("logs", "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	if !strings.Contains(stdout, "--follow") {
		t.Error("Logs help should mention --follow flag")
	}
	if !strings.Contains(stdout, "--lines") {
		t.Error("Logs help should mention --lines flag")
	}
}

func TestMonitorCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("monitor", "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	for _, flag := range []string{"--interval", "--auto-restart", "--serve", "--print-unit"} {
		if !strings.Contains(stdout, flag) {
			t.Errorf("Monitor help should mention %s flag", flag)
		}
	}
}

func TestInitCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("init", "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	for _, flag := range []string{"--root", "--python", "--conda-env", "--gpus", "--force"} {
		if !strings.Contains(stdout, flag) {
			t.Errorf("Init help should mention %s flag", flag)
		}
	}
}

func TestSweepCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("sweep", "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	if !strings.Contains(stdout, "sweep") {
		t.Error("Sweep help should describe the sweep")
	}
}

func TestGlobalFlags(t *testing.T) {
	stdout, _, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("Help failed: %v", err)
	}

	if !strings.Contains(stdout, "--verbose") {
		t.Error("Should have --verbose flag")
	}

	if !strings.Contains(stdout, "--json") {
		t.Error("Should have --json flag")
	}
}

func TestCommandRequiresArgs(t *testing.T) {
	env := testutil.NewTestEnv(t)
	defer env.Cleanup()

	// Commands that require arguments show usage in stderr
	tests := []struct {
		cmd          string
		requiresArgs bool
	}{
		{"train", true},
		{"eval", true},
		{"status", true},
		{"logs", true},
		{"stop", true},
		{"events", true},
		{"report", true},
		{"restart", true},
		{"rm", true},
		{"launch", true},
		{"runs", false},
		{"manifests", false},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			stdout, stderr, err := executeCommand(tt.cmd)
			output := stdout + stderr

			if tt.requiresArgs {
				if err == nil {
					t.Errorf("%s with no args should fail", tt.cmd)
				}
				if !strings.Contains(output, "Usage:") && !strings.Contains(output, "arg") {
					t.Errorf("%s: expected usage info in output, got %q", tt.cmd, output)
				}
			} else if err != nil {
				t.Errorf("%s with no args should succeed, got %v", tt.cmd, err)
			}
		})
	}
}

func TestInitCommand_Flags(t *testing.T) {
	env := testutil.NewTestEnv(t)
	defer env.Cleanup()

	_, _, err := executeCommand("init",
		"--root", env.Config.ProjectRoot,
		"--conda-env", "igp",
		"--gpus", "0,1",
		"--force")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	toolConfigPath := filepath.Join(env.Paths.ConfigDir, "igpctl.toml")
	if _, err := os.Stat(toolConfigPath); err != nil {
		t.Errorf("init should write %s: %v", toolConfigPath, err)
	}

	for _, name := range []string{"base_train.yaml", "ig_eval.yaml"} {
		path := filepath.Join(env.Paths.ManifestsDir, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("init should write example manifest %s: %v", name, err)
		}
	}
}

func TestInitCommand_ExistingFilesSkipped(t *testing.T) {
	env := testutil.NewTestEnv(t)
	defer env.Cleanup()

	// The test env pre-writes igpctl.toml; without --force it must survive.
	toolConfigPath := filepath.Join(env.Paths.ConfigDir, "igpctl.toml")
	before, err := os.ReadFile(toolConfigPath)
	if err != nil {
		t.Fatalf("reading pre-existing config: %v", err)
	}

	if _, _, err := executeCommand("init", "--root", "/elsewhere"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	after, err := os.ReadFile(toolConfigPath)
	if err != nil {
		t.Fatalf("reading config after init: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("init without --force should not overwrite igpctl.toml")
	}
}

func TestInitCommand_Validation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	defer env.Cleanup()

	tests := []struct {
		name string
		args []string
	}{
		{"python and conda-env together", []string{"init", "--root", "/p", "--python", "/usr/bin/python3", "--conda-env", "igp"}},
		{"flags without root", []string{"init", "--conda-env", "igp"}},
		{"bad gpu list", []string{"init", "--root", "/p", "--gpus", "zero"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := executeCommand(tt.args...); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestRunsCommand_Empty(t *testing.T) {
	env := testutil.NewTestEnv(t)
	defer env.Cleanup()

	if _, _, err := executeCommand("runs"); err != nil {
		t.Errorf("runs with no runs should succeed, got %v", err)
	}
}

func TestGatherOverrides(t *testing.T) {
	t.Run("empty sources", func(t *testing.T) {
		set, err := gatherOverrides("", nil, nil)
		if err != nil {
			t.Fatalf("gatherOverrides() error = %v", err)
		}
		if set.Len() != 0 {
			t.Errorf("expected empty set, got %d pairs", set.Len())
		}
	})

	t.Run("options list", func(t *testing.T) {
		set, err := gatherOverrides("net.c0=48,RL.lr=2.5e-4", nil, nil)
		if err != nil {
			t.Fatalf("gatherOverrides() error = %v", err)
		}
		if v, ok := set.Get("net.c0"); !ok || v != 48 {
			t.Errorf("net.c0 = %v (%t), want 48", v, ok)
		}
	})

	t.Run("later sources win", func(t *testing.T) {
		set, err := gatherOverrides(
			"AGENT.IG_PLANNER.utility_exp=1.0",
			[]string{"AGENT.IG_PLANNER.utility_exp=1.5"},
			[]string{"AGENT.IG_PLANNER.utility_exp=2.0"},
		)
		if err != nil {
			t.Fatalf("gatherOverrides() error = %v", err)
		}
		v, _ := set.Get("AGENT.IG_PLANNER.utility_exp")
		if v != 2.0 {
			t.Errorf("positional override should win, got %v", v)
		}
	})

	t.Run("invalid list", func(t *testing.T) {
		if _, err := gatherOverrides("not-a-pair", nil, nil); err == nil {
			t.Error("expected an error for a list entry without '='")
		}
	})

	t.Run("invalid flag", func(t *testing.T) {
		if _, err := gatherOverrides("", []string{"=5"}, nil); err == nil {
			t.Error("expected an error for an empty key")
		}
	})
}

func TestFormatAge(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		createdAt string
		want      string
	}{
		{"seconds", now.Add(-30 * time.Second).Format(time.RFC3339), "30s"},
		{"minutes", now.Add(-90 * time.Second).Format(time.RFC3339), "1m"},
		{"hours", now.Add(-3 * time.Hour).Format(time.RFC3339), "3.0h"},
		{"days", now.Add(-48 * time.Hour).Format(time.RFC3339), "2.0d"},
		{"garbage", "not-a-timestamp", "-"},
		{"empty", "", "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAge(tt.createdAt); got != tt.want {
				t.Errorf("formatAge(%q) = %q, want %q", tt.createdAt, got, tt.want)
			}
		})
	}
}
