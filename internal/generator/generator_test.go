package generator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/polonav/igpctl/internal/config"
)

// validToolConfigData returns a valid ToolConfigData for testing
func validToolConfigData() *ToolConfigData {
	return &ToolConfigData{
		ProjectRoot: "/home/user/polo",
		CondaEnv:    "igp",
		GPUs:        []int{0, 1},
		DataDir:     "/data/datasets/info_gain",
	}
}

func TestGenerateToolConfig(t *testing.T) {
	result, err := GenerateToolConfig(validToolConfigData())
	if err != nil {
		t.Fatalf("GenerateToolConfig failed: %v", err)
	}

	if !strings.Contains(result, `project_root = "/home/user/polo"`) {
		t.Error("Config should contain project root")
	}
	if !strings.Contains(result, `conda_env = "igp"`) {
		t.Error("Config should contain conda env")
	}
	if strings.Contains(result, "\npython = ") {
		t.Error("Config should not set python when conda env is chosen")
	}
	if !strings.Contains(result, "gpus = [0, 1]") {
		t.Error("Config should contain GPU list")
	}
	if !strings.Contains(result, `data_dir = "/data/datasets/info_gain"`) {
		t.Error("Config should contain data dir")
	}
	if !strings.Contains(result, `train_script = "train_igp.py"`) {
		t.Error("Config should pin the train entry point")
	}
	if !strings.Contains(result, `environment_file = "environment.yml"`) {
		t.Error("Config should pin the environment descriptor")
	}
}

func TestGenerateToolConfig_ExplicitInterpreter(t *testing.T) {
	data := validToolConfigData()
	data.CondaEnv = ""
	data.Python = "/opt/conda/envs/igp/bin/python"

	result, err := GenerateToolConfig(data)
	if err != nil {
		t.Fatalf("GenerateToolConfig failed: %v", err)
	}

	if !strings.Contains(result, `python = "/opt/conda/envs/igp/bin/python"`) {
		t.Error("Config should contain explicit interpreter")
	}
	if strings.Contains(result, "\nconda_env = ") {
		t.Error("Config should not set conda_env when python is explicit")
	}
}

func TestGenerateToolConfig_UnsetOptionsCommented(t *testing.T) {
	data := &ToolConfigData{ProjectRoot: "/home/user/polo"}

	result, err := GenerateToolConfig(data)
	if err != nil {
		t.Fatalf("GenerateToolConfig failed: %v", err)
	}

	if !strings.Contains(result, "# gpus = [0, 1]") {
		t.Error("Unset GPUs should render as a commented example")
	}
	if !strings.Contains(result, "# data_dir = ") {
		t.Error("Unset data dir should render as a commented example")
	}
	if !strings.Contains(result, "# conda_env = ") {
		t.Error("Unset interpreter should render as commented examples")
	}
}

func TestGeneratedToolConfigLoads(t *testing.T) {
	result, err := GenerateToolConfig(validToolConfigData())
	if err != nil {
		t.Fatalf("GenerateToolConfig failed: %v", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "igpctl.toml"), []byte(result), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadToolConfig(dir)
	if err != nil {
		t.Fatalf("generated config failed to load: %v", err)
	}

	if cfg.ProjectRoot != "/home/user/polo" {
		t.Errorf("ProjectRoot = %q", cfg.ProjectRoot)
	}
	if cfg.CondaEnv != "igp" {
		t.Errorf("CondaEnv = %q", cfg.CondaEnv)
	}
	if len(cfg.GPUs) != 2 || cfg.GPUs[0] != 0 || cfg.GPUs[1] != 1 {
		t.Errorf("GPUs = %v", cfg.GPUs)
	}
	if cfg.DataDir != "/data/datasets/info_gain" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.TrainScript != "train_igp.py" {
		t.Errorf("TrainScript = %q", cfg.TrainScript)
	}
}

func TestGenerateToolConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		data ToolConfigData
	}{
		{"missing project root", ToolConfigData{CondaEnv: "igp"}},
		{"python and conda both set", ToolConfigData{ProjectRoot: "/p", Python: "/usr/bin/python3", CondaEnv: "igp"}},
		{"negative gpu", ToolConfigData{ProjectRoot: "/p", GPUs: []int{-1}}},
		{"duplicate gpu", ToolConfigData{ProjectRoot: "/p", GPUs: []int{0, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GenerateToolConfig(&tt.data); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGenerateManifest(t *testing.T) {
	data := &ManifestData{
		Name:        "base_train",
		Description: "Baseline information-gain training",
		Program:     config.ProgramTrain,
		BaseConfig:  "configs/igp_base.yaml",
	}

	result, err := GenerateManifest(data)
	if err != nil {
		t.Fatalf("GenerateManifest failed: %v", err)
	}

	if !strings.Contains(result, "name: base_train") {
		t.Error("Manifest should contain name")
	}
	if !strings.Contains(result, "program: train") {
		t.Error("Manifest should contain program")
	}
	if !strings.Contains(result, "igpctl train base_train") {
		t.Error("Manifest should document the launch command")
	}
	if !strings.Contains(result, `base_config: "configs/igp_base.yaml"`) {
		t.Error("Manifest should contain base config")
	}
	if strings.Contains(result, "\neval:") {
		t.Error("Train manifest should not contain an eval block")
	}
	if !strings.Contains(result, "# sweep:") {
		t.Error("Manifest should document sweeps as a commented example")
	}
}

func TestGenerateManifest_Eval(t *testing.T) {
	data := &ManifestData{
		Name:     "ig_eval",
		Program:  config.ProgramEval,
		Episodes: 200,
		Policy:   "ig",
	}

	result, err := GenerateManifest(data)
	if err != nil {
		t.Fatalf("GenerateManifest failed: %v", err)
	}

	if !strings.Contains(result, "eval:") {
		t.Error("Eval manifest should contain an eval block")
	}
	if !strings.Contains(result, "episodes: 200") {
		t.Error("Eval manifest should contain episode count")
	}
	if !strings.Contains(result, "policy: ig") {
		t.Error("Eval manifest should contain policy")
	}
	if !strings.Contains(result, "skip_existing: true") {
		t.Error("Eval manifest should default to skipping finished episodes")
	}
}

func TestGeneratedManifestLoads(t *testing.T) {
	t.Run("train", func(t *testing.T) {
		result, err := GenerateManifest(&ManifestData{
			Name:        "base_train",
			Description: "Baseline training",
			Program:     config.ProgramTrain,
			BaseConfig:  "configs/igp_base.yaml",
		})
		if err != nil {
			t.Fatalf("GenerateManifest failed: %v", err)
		}

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "base_train.yaml"), []byte(result), 0o644); err != nil {
			t.Fatal(err)
		}

		m, err := config.LoadManifest(dir, "base_train")
		if err != nil {
			t.Fatalf("generated manifest failed to load: %v", err)
		}

		if m.Name != "base_train" {
			t.Errorf("Name = %q", m.Name)
		}
		if m.Program != config.ProgramTrain {
			t.Errorf("Program = %q", m.Program)
		}
		if m.BaseConfig != "configs/igp_base.yaml" {
			t.Errorf("BaseConfig = %q", m.BaseConfig)
		}
		if m.Restart.MaxRestarts != 2 {
			t.Errorf("MaxRestarts = %d, want 2", m.Restart.MaxRestarts)
		}
		if m.Env["OMP_NUM_THREADS"] != "4" {
			t.Errorf("Env = %v", m.Env)
		}
		if m.Options["SEMANTIC_MAP.map_resolution"] != 5 {
			t.Errorf("Options = %v", m.Options)
		}
	})

	t.Run("eval", func(t *testing.T) {
		result, err := GenerateManifest(&ManifestData{
			Name:     "ig_eval",
			Program:  config.ProgramEval,
			Episodes: 200,
			Policy:   "ig",
		})
		if err != nil {
			t.Fatalf("GenerateManifest failed: %v", err)
		}

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "ig_eval.yaml"), []byte(result), 0o644); err != nil {
			t.Fatal(err)
		}

		m, err := config.LoadManifest(dir, "ig_eval")
		if err != nil {
			t.Fatalf("generated manifest failed to load: %v", err)
		}

		if m.Eval == nil {
			t.Fatal("Eval block missing")
		}
		if m.Eval.Episodes != 200 {
			t.Errorf("Episodes = %d", m.Eval.Episodes)
		}
		if m.Eval.Policy != "ig" {
			t.Errorf("Policy = %q", m.Eval.Policy)
		}
		if !m.Eval.SkipExisting {
			t.Error("SkipExisting should be true")
		}
	})
}

func TestGenerateManifestValidation(t *testing.T) {
	tests := []struct {
		name string
		data ManifestData
	}{
		{"bad name", ManifestData{Name: "Bad Name", Program: config.ProgramTrain}},
		{"unknown program", ManifestData{Name: "x", Program: "serve"}},
		{"eval without episodes", ManifestData{Name: "x", Program: config.ProgramEval, Policy: "ig"}},
		{"eval without policy", ManifestData{Name: "x", Program: config.ProgramEval, Episodes: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GenerateManifest(&tt.data); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGenerateSystemdUnit(t *testing.T) {
	data := &UnitData{
		BinaryPath:  "/usr/local/bin/igpctl",
		User:        "deploy",
		Interval:    30,
		ServeAddr:   ":9290",
		AutoRestart: true,
	}

	result, err := GenerateSystemdUnit(data)
	if err != nil {
		t.Fatalf("GenerateSystemdUnit failed: %v", err)
	}

	if !strings.Contains(result, "ExecStart=/usr/local/bin/igpctl monitor --interval 30 --auto-restart --serve :9290") {
		t.Errorf("unexpected ExecStart in:\n%s", result)
	}
	if !strings.Contains(result, "User=deploy") {
		t.Error("Unit should contain service user")
	}
	if !strings.Contains(result, "Restart=on-failure") {
		t.Error("Unit should restart on failure")
	}
	if !strings.Contains(result, "WantedBy=multi-user.target") {
		t.Error("Unit should contain install section")
	}
}

func TestGenerateSystemdUnit_NoUser(t *testing.T) {
	data := &UnitData{
		BinaryPath: "/usr/local/bin/igpctl",
		Interval:   60,
	}

	result, err := GenerateSystemdUnit(data)
	if err != nil {
		t.Fatalf("GenerateSystemdUnit failed: %v", err)
	}

	if strings.Contains(result, "User=") {
		t.Error("Unit should omit User when unset")
	}
	if !strings.Contains(result, "ExecStart=/usr/local/bin/igpctl monitor --interval 60") {
		t.Errorf("unexpected ExecStart in:\n%s", result)
	}
	if strings.Contains(result, "--auto-restart") {
		t.Error("Unit should omit --auto-restart when unset")
	}
	if strings.Contains(result, "--serve") {
		t.Error("Unit should omit --serve when unset")
	}
}

func TestGenerateSystemdUnitValidation(t *testing.T) {
	if _, err := GenerateSystemdUnit(&UnitData{Interval: 30}); err == nil {
		t.Error("expected error for missing binary path")
	}
	if _, err := GenerateSystemdUnit(&UnitData{BinaryPath: "/bin/igpctl", Interval: 0}); err == nil {
		t.Error("expected error for non-positive interval")
	}
}

func TestTomlHelpers(t *testing.T) {
	if got := tomlString(`a "quoted" \path`); got != `"a \"quoted\" \\path"` {
		t.Errorf("tomlString = %s", got)
	}
	if got := tomlIntList([]int{0, 1, 3}); got != "[0, 1, 3]" {
		t.Errorf("tomlIntList = %s", got)
	}
	if got := tomlIntList(nil); got != "[]" {
		t.Errorf("tomlIntList(nil) = %s", got)
	}
}
