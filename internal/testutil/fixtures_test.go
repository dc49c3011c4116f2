package testutil

import (
	"testing"

	"github.com/polonav/igpctl/internal/config"
)

func TestLoadValidManifest(t *testing.T) {
	manifest, err := ValidManifest()
	if err != nil {
		t.Fatalf("ValidManifest() error: %v", err)
	}

	if manifest.Name != "base_train" {
		t.Errorf("Name = %q, want %q", manifest.Name, "base_train")
	}
	if manifest.Program != config.ProgramTrain {
		t.Errorf("Program = %q, want %q", manifest.Program, config.ProgramTrain)
	}
	if manifest.Restart.MaxRestarts != 2 {
		t.Errorf("MaxRestarts = %d, want 2", manifest.Restart.MaxRestarts)
	}
	if _, ok := manifest.Options["net"]; !ok {
		t.Error("Options should contain net")
	}

	// Validate should pass
	if err := manifest.Validate(); err != nil {
		t.Errorf("Valid manifest should pass validation: %v", err)
	}
}

func TestLoadInvalidManifest(t *testing.T) {
	manifest, err := InvalidManifest()
	if err != nil {
		t.Fatalf("InvalidManifest() error: %v", err)
	}

	// Validate should fail
	if err := manifest.Validate(); err == nil {
		t.Error("Invalid manifest should fail validation")
	}
}

func TestLoadSweepManifest(t *testing.T) {
	manifest, err := SweepManifest()
	if err != nil {
		t.Fatalf("SweepManifest() error: %v", err)
	}

	if len(manifest.Sweep) != 2 {
		t.Fatalf("len(Sweep) = %d, want 2", len(manifest.Sweep))
	}
	if manifest.Sweep[0].Key != "AGENT.IG_PLANNER.utility_exp" {
		t.Errorf("Sweep[0].Key = %q, want utility exponent axis", manifest.Sweep[0].Key)
	}
	if len(manifest.Sweep[0].Values) != 3 {
		t.Errorf("len(Sweep[0].Values) = %d, want 3", len(manifest.Sweep[0].Values))
	}

	// Validate should pass
	if err := manifest.Validate(); err != nil {
		t.Errorf("Sweep manifest should pass validation: %v", err)
	}
}

func TestLoadValidRunRecord(t *testing.T) {
	record, err := ValidRunRecord()
	if err != nil {
		t.Fatalf("ValidRunRecord() error: %v", err)
	}

	if record.Name != "base_train" {
		t.Errorf("Name = %q, want %q", record.Name, "base_train")
	}
	if record.Status != config.StatusRunning {
		t.Errorf("Status = %q, want %q", record.Status, config.StatusRunning)
	}
	if record.PID != 4242 {
		t.Errorf("PID = %d, want 4242", record.PID)
	}
	if !record.Active() {
		t.Error("running record should be active")
	}

	// Validate should pass
	if err := record.Validate(); err != nil {
		t.Errorf("Valid record should pass validation: %v", err)
	}
}

func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("nonexistent.yaml")
	if err == nil {
		t.Error("LoadFixture should error for nonexistent file")
	}
}

func TestNewTestEnv(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Cleanup()

	if env.Paths.RunsDir == "" {
		t.Fatal("RunsDir should be set")
	}

	env.AddRun(DefaultRunRecord("sample"))
	if !env.RunExists("sample") {
		t.Error("AddRun should persist the record")
	}

	got := env.GetRun("sample")
	if got == nil || got.Name != "sample" {
		t.Errorf("GetRun = %+v, want record named sample", got)
	}
}

func TestTestEnv_AddRun_RegistersLiveProcess(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Cleanup()

	record := DefaultRunRecord("live")
	record.Status = config.StatusRunning
	record.ExitCode = nil
	env.AddRun(record)

	if record.PID == 0 {
		t.Fatal("active record should have been assigned a PID")
	}
	running, err := env.Runner.IsRunning(record.PID)
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if !running {
		t.Error("mock runner should report the process alive")
	}
}
