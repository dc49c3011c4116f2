package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	securejoin "github.com/cyphar/filepath-securejoin"
	"gopkg.in/yaml.v3"
)

// runNameRegex validates run and experiment names.
// Names must start with a lowercase letter or digit, followed by lowercase
// letters, digits, underscores, or hyphens. Maximum length is 63 characters
// so names stay safe as directory names and child process arguments.
var runNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateRunName checks if a run or experiment name is valid.
// Valid names:
//   - Start with a lowercase letter or digit
//   - Contain only lowercase letters, digits, underscores, or hyphens
//   - Are between 1 and 63 characters long
//   - Do not contain path separators or special characters
func ValidateRunName(name string) error {
	if name == "" {
		return fmt.Errorf("run name cannot be empty")
	}

	if !runNameRegex.MatchString(name) {
		return fmt.Errorf("invalid run name %q: must start with a lowercase letter or digit, contain only lowercase letters, digits, underscores, or hyphens, and be at most 63 characters", name)
	}

	return nil
}

// ParseGPUList parses a comma-separated list of CUDA device ids, such as
// "0,1,3". Whitespace around ids is ignored and an empty string parses to
// nil, meaning all devices.
func ParseGPUList(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	var gpus []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid gpu id %q", part)
		}
		gpus = append(gpus, id)
	}
	return gpus, nil
}

// safeChild resolves name under baseDir, rejecting anything that would
// escape it. Names never contain separators (ValidateRunName), but records
// and manifests can arrive from other machines, so the join is hardened
// against traversal and symlink tricks.
func safeChild(baseDir, name, suffix string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("name cannot be an absolute path")
	}
	if filepath.Dir(name) != "." {
		return "", fmt.Errorf("name cannot contain path separators")
	}

	path, err := securejoin.SecureJoin(baseDir, name+suffix)
	if err != nil {
		return "", fmt.Errorf("invalid path for %q: %w", name, err)
	}
	return path, nil
}

const (
	// Program identifiers for the two launchable entry points.
	ProgramTrain = "train"
	ProgramEval  = "eval"

	// Scripts the external project ships. Paths are resolved relative
	// to ToolConfig.ProjectRoot.
	DefaultTrainScript = "train_igp.py"
	DefaultEvalScript  = "eval_agent.py"

	// DefaultDataDir matches the loader default in the external trainer.
	DefaultDataDir = "data/info_gain"

	toolConfigName = "igpctl.toml"
)

// Run statuses persisted in run records.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
	StatusStopped  = "stopped"
)

// ToolConfig is igpctl's own configuration, read from igpctl.toml.
type ToolConfig struct {
	// Python is the interpreter used to launch the external programs.
	// Empty means auto-detect (conda env python, then python3 on PATH).
	Python string `toml:"python"`

	// CondaEnv names the conda environment the project pins. Used for
	// interpreter detection and environment verification.
	CondaEnv string `toml:"conda_env"`

	// ProjectRoot is the checkout containing train_igp.py / eval_agent.py.
	ProjectRoot string `toml:"project_root"`

	TrainScript string `toml:"train_script"`
	EvalScript  string `toml:"eval_script"`

	// DataDir is the default dataset root for data and map commands.
	DataDir string `toml:"data_dir"`

	// GPUs lists the CUDA device ids runs may be scheduled onto.
	GPUs []int `toml:"gpus"`

	// EnvironmentFile is the conda environment descriptor, relative to
	// ProjectRoot unless absolute.
	EnvironmentFile string `toml:"environment_file"`
}

// Validate checks that the ToolConfig is usable.
func (c *ToolConfig) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("project_root is required")
	}
	seen := make(map[int]bool, len(c.GPUs))
	for _, id := range c.GPUs {
		if id < 0 {
			return fmt.Errorf("gpu id must be non-negative (got %d)", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate gpu id %d", id)
		}
		seen[id] = true
	}
	return nil
}

func (c *ToolConfig) applyDefaults() {
	if c.TrainScript == "" {
		c.TrainScript = DefaultTrainScript
	}
	if c.EvalScript == "" {
		c.EvalScript = DefaultEvalScript
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if len(c.GPUs) == 0 {
		c.GPUs = []int{0}
	}
	if c.EnvironmentFile == "" {
		c.EnvironmentFile = "environment.yml"
	}
}

// ScriptPath returns the absolute path of the script for a program.
func (c *ToolConfig) ScriptPath(program string) (string, error) {
	var script string
	switch program {
	case ProgramTrain:
		script = c.TrainScript
	case ProgramEval:
		script = c.EvalScript
	default:
		return "", fmt.Errorf("unknown program %q", program)
	}
	if filepath.IsAbs(script) {
		return script, nil
	}
	return filepath.Join(c.ProjectRoot, script), nil
}

// EnvironmentPath returns the absolute path of the conda environment file.
func (c *ToolConfig) EnvironmentPath() string {
	if filepath.IsAbs(c.EnvironmentFile) {
		return c.EnvironmentFile
	}
	return filepath.Join(c.ProjectRoot, c.EnvironmentFile)
}

// EvalSettings holds evaluator knobs carried by a manifest.
type EvalSettings struct {
	Episodes     int    `yaml:"episodes"`
	Policy       string `yaml:"policy"`
	GTSemantic   bool   `yaml:"gt_semantic"`
	SaveVideo    bool   `yaml:"save_video"`
	NoRender     bool   `yaml:"no_render"`
	Interactive  bool   `yaml:"interactive"`
	SkipExisting bool   `yaml:"skip_existing"`
}

// RestartPolicy controls monitor-driven relaunches.
type RestartPolicy struct {
	// MaxRestarts caps automatic relaunches. Zero disables them.
	MaxRestarts int `yaml:"max_restarts"`
}

// SweepAxis is one dimension of a hyperparameter sweep: a dotted option
// key and the values to try.
type SweepAxis struct {
	Key    string `yaml:"key"`
	Values []any  `yaml:"values"`
}

// Manifest describes an experiment: which program to run and how.
type Manifest struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Program     string            `yaml:"program"`
	BaseConfig  string            `yaml:"base_config"`
	Options     map[string]any    `yaml:"options"`
	Env         map[string]string `yaml:"env"`
	Eval        *EvalSettings     `yaml:"eval"`
	Restart     RestartPolicy     `yaml:"restart"`
	Sweep       []SweepAxis       `yaml:"sweep"`
}

// Validate checks that the Manifest is valid.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := ValidateRunName(m.Name); err != nil {
		return err
	}

	switch m.Program {
	case ProgramTrain, ProgramEval:
	case "":
		return fmt.Errorf("program is required (train or eval)")
	default:
		return fmt.Errorf("invalid program %q (must be train or eval)", m.Program)
	}

	if m.Program == ProgramEval {
		if m.Eval == nil {
			return fmt.Errorf("eval settings are required for eval manifests")
		}
		if m.Eval.Episodes <= 0 {
			return fmt.Errorf("eval.episodes must be positive (got %d)", m.Eval.Episodes)
		}
		if m.Eval.Policy == "" {
			return fmt.Errorf("eval.policy is required")
		}
	}

	for i, axis := range m.Sweep {
		if axis.Key == "" {
			return fmt.Errorf("sweep axis %d: key is required", i)
		}
		if len(axis.Values) == 0 {
			return fmt.Errorf("sweep axis %q: at least one value is required", axis.Key)
		}
	}

	if m.Restart.MaxRestarts < 0 {
		return fmt.Errorf("restart.max_restarts must be non-negative")
	}

	return nil
}

// RunRecord is the persisted state of a launched run.
type RunRecord struct {
	Name       string   `json:"name"`
	ID         string   `json:"id,omitempty"` // launch-assigned, survives restarts and name reuse
	Experiment string   `json:"experiment"`
	Program    string   `json:"program"`
	Manifest   string   `json:"manifest,omitempty"`
	GPU        int      `json:"gpu"`
	PID        int      `json:"pid,omitempty"`
	Argv       []string `json:"argv"`
	WorkDir    string   `json:"workDir"`
	Env        []string `json:"env,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	Status     string   `json:"status"`
	ExitCode   *int     `json:"exitCode,omitempty"`

	// Reproducibility capture at launch time.
	GitRevision string `json:"gitRevision,omitempty"`
	GitDirty    bool   `json:"gitDirty,omitempty"`
	EnvHash     string `json:"envHash,omitempty"`

	// Evaluator runs carry their policy and episode budget for results
	// aggregation.
	Policy   string `json:"policy,omitempty"`
	Episodes int    `json:"episodes,omitempty"`

	// Restarts counts monitor-driven relaunches.
	Restarts int `json:"restarts,omitempty"`
}

// Validate checks that the RunRecord is valid.
func (r *RunRecord) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Experiment == "" {
		return fmt.Errorf("experiment is required")
	}
	if r.Program != ProgramTrain && r.Program != ProgramEval {
		return fmt.Errorf("invalid program %q", r.Program)
	}
	if r.GPU < 0 {
		return fmt.Errorf("gpu must be non-negative (got %d)", r.GPU)
	}
	if len(r.Argv) == 0 {
		return fmt.Errorf("argv is required")
	}
	return nil
}

// Active reports whether the record claims a live process.
func (r *RunRecord) Active() bool {
	return r.Status == StatusRunning || r.Status == StatusPending
}

// Paths holds the configured filesystem layout.
type Paths struct {
	// ConfigDir holds igpctl.toml.
	ConfigDir string

	// ManifestsDir holds experiment manifests (<name>.yaml).
	ManifestsDir string

	// StateDir holds cross-run state (results index, monitor state).
	StateDir string

	// RunsDir holds one directory per run.
	RunsDir string
}

// DefaultPaths returns the default path configuration. The root directory
// is $IGPCTL_HOME if set, otherwise ~/.igpctl.
func DefaultPaths() *Paths {
	root := os.Getenv("IGPCTL_HOME")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		root = filepath.Join(home, ".igpctl")
	}
	return PathsUnder(root)
}

// PathsUnder returns the path layout rooted at dir.
func PathsUnder(dir string) *Paths {
	return &Paths{
		ConfigDir:    dir,
		ManifestsDir: filepath.Join(dir, "experiments"),
		StateDir:     filepath.Join(dir, "state"),
		RunsDir:      filepath.Join(dir, "state", "runs"),
	}
}

// RunDir returns the directory for a run, validating the name.
func (p *Paths) RunDir(name string) (string, error) {
	return safeChild(p.RunsDir, name, "")
}

// ResultsDBPath is the SQLite index of episode metrics across runs.
func (p *Paths) ResultsDBPath() string {
	return filepath.Join(p.StateDir, "results.db")
}

// Well-known files inside a run directory.
func RecordPath(runDir string) string   { return filepath.Join(runDir, "record.json") }
func LogPath(runDir string) string      { return filepath.Join(runDir, "child.log") }
func OptionsPath(runDir string) string  { return filepath.Join(runDir, "options.yaml") }
func EventsPath(runDir string) string   { return filepath.Join(runDir, "events.jsonl") }
func EpisodesPath(runDir string) string { return filepath.Join(runDir, "episodes.jsonl") }
func ReportPath(runDir string) string   { return filepath.Join(runDir, "report.md") }
func EnvSnapshotPath(runDir string) string {
	return filepath.Join(runDir, "environment.snapshot.yml")
}

// ToolConfigPath returns where igpctl.toml lives under configDir.
func ToolConfigPath(configDir string) string {
	return filepath.Join(configDir, toolConfigName)
}

// LoadToolConfig loads igpctl.toml from the config directory. A missing
// file is not an error: defaults apply, but ProjectRoot must then come
// from a flag.
func LoadToolConfig(configDir string) (*ToolConfig, error) {
	var cfg ToolConfig

	path := ToolConfigPath(configDir)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read tool config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// SaveToolConfig writes igpctl.toml into the config directory.
func SaveToolConfig(configDir string, cfg *ToolConfig) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode tool config: %w", err)
	}

	path := ToolConfigPath(configDir)
	if err := os.WriteFile(path, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to write tool config: %w", err)
	}
	return nil
}

// LoadManifest loads an experiment manifest by name.
func LoadManifest(manifestsDir, name string) (*Manifest, error) {
	path, err := safeChild(manifestsDir, name, ".yaml")
	if err != nil {
		return nil, fmt.Errorf("invalid manifest name: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", name, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", name, err)
	}

	// Set name from filename if not specified in YAML
	if manifest.Name == "" {
		manifest.Name = name
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", name, err)
	}

	return &manifest, nil
}

// LoadManifestFile loads a manifest from an explicit path.
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if manifest.Name == "" {
		base := filepath.Base(path)
		manifest.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	return &manifest, nil
}

// ListManifests returns all available manifests.
func ListManifests(manifestsDir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(manifestsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifests directory: %w", err)
	}

	var manifests []*Manifest
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		manifest, err := LoadManifest(manifestsDir, name)
		if err != nil {
			continue // Skip invalid manifests
		}
		manifests = append(manifests, manifest)
	}

	return manifests, nil
}

// LoadRunRecord loads the record for a run.
func LoadRunRecord(runsDir, name string) (*RunRecord, error) {
	runDir, err := safeChild(runsDir, name, "")
	if err != nil {
		return nil, fmt.Errorf("invalid run name: %w", err)
	}
	data, err := os.ReadFile(RecordPath(runDir))
	if err != nil {
		return nil, fmt.Errorf("run not found: %s", name)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse run record: %w", err)
	}

	if record.Status == "" {
		record.Status = StatusPending
	}

	return &record, nil
}

// SaveRunRecord saves the record for a run.
func SaveRunRecord(runsDir string, record *RunRecord) error {
	runDir, err := safeChild(runsDir, record.Name, "")
	if err != nil {
		return fmt.Errorf("invalid run name: %w", err)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	if err := os.WriteFile(RecordPath(runDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}

	return nil
}

// DeleteRun removes a run directory and everything in it.
func DeleteRun(runsDir, name string) error {
	runDir, err := safeChild(runsDir, name, "")
	if err != nil {
		return fmt.Errorf("invalid run name: %w", err)
	}
	return os.RemoveAll(runDir)
}

// ListRuns returns all run records, sorted by creation time.
func ListRuns(runsDir string) ([]*RunRecord, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var runs []*RunRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := LoadRunRecord(runsDir, entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, record)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt < runs[j].CreatedAt
	})

	return runs, nil
}

// RunExists checks if a run record exists.
func RunExists(runsDir, name string) bool {
	runDir, err := safeChild(runsDir, name, "")
	if err != nil {
		return false // Invalid name means it doesn't exist
	}
	_, err = os.Stat(RecordPath(runDir))
	return err == nil
}

// RunDirNames returns the names of all directories under runsDir,
// including ones without a readable record (used by gc).
func RunDirNames(runsDir string) ([]string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
