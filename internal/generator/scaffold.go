package generator

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/polonav/igpctl/internal/config"
)

// ToolConfigData holds the configuration for generating igpctl.toml.
// Empty optional fields render as commented examples.
type ToolConfigData struct {
	ProjectRoot string
	Python      string // explicit interpreter path
	CondaEnv    string // conda environment name
	GPUs        []int
	DataDir     string
}

// Validate checks that the ToolConfigData can produce a loadable config.
func (d *ToolConfigData) Validate() error {
	if d.ProjectRoot == "" {
		return fmt.Errorf("project root is required")
	}
	if d.Python != "" && d.CondaEnv != "" {
		return fmt.Errorf("python and conda env are mutually exclusive")
	}
	seen := make(map[int]bool, len(d.GPUs))
	for _, id := range d.GPUs {
		if id < 0 {
			return fmt.Errorf("invalid GPU id %d", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate GPU id %d", id)
		}
		seen[id] = true
	}
	return nil
}

// GenerateToolConfig renders igpctl.toml content.
func GenerateToolConfig(data *ToolConfigData) (string, error) {
	if err := data.Validate(); err != nil {
		return "", fmt.Errorf("invalid tool config: %w", err)
	}

	var buf bytes.Buffer
	if err := toolConfigTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute tool config template: %w", err)
	}

	return buf.String(), nil
}

// ManifestData holds the configuration for generating an example
// experiment manifest.
type ManifestData struct {
	Name        string
	Description string
	Program     string // train or eval
	BaseConfig  string // optional base YAML path

	// Eval settings, required when Program is eval.
	Episodes int
	Policy   string
}

// Validate checks that the ManifestData would produce a manifest that
// passes manifest validation on load.
func (d *ManifestData) Validate() error {
	if err := config.ValidateRunName(d.Name); err != nil {
		return err
	}
	switch d.Program {
	case config.ProgramTrain:
	case config.ProgramEval:
		if d.Episodes <= 0 {
			return fmt.Errorf("eval manifest needs a positive episode count")
		}
		if d.Policy == "" {
			return fmt.Errorf("eval manifest needs a policy")
		}
	default:
		return fmt.Errorf("unknown program %q", d.Program)
	}
	return nil
}

// GenerateManifest renders an example experiment manifest.
func GenerateManifest(data *ManifestData) (string, error) {
	if err := data.Validate(); err != nil {
		return "", fmt.Errorf("invalid manifest: %w", err)
	}

	var buf bytes.Buffer
	if err := manifestTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute manifest template: %w", err)
	}

	return buf.String(), nil
}

// UnitData holds the configuration for generating a systemd service
// that keeps the run monitor alive across reboots.
type UnitData struct {
	BinaryPath  string // absolute path of the igpctl binary
	User        string // service user, empty runs as root
	Interval    int    // reconcile interval in seconds
	ServeAddr   string // optional status server address
	AutoRestart bool
}

// Validate checks that the UnitData describes a runnable service.
func (d *UnitData) Validate() error {
	if d.BinaryPath == "" {
		return fmt.Errorf("binary path is required")
	}
	if d.Interval <= 0 {
		return fmt.Errorf("invalid interval: %d (must be positive)", d.Interval)
	}
	return nil
}

// GenerateSystemdUnit renders a systemd service file for igpctl monitor.
func GenerateSystemdUnit(data *UnitData) (string, error) {
	if err := data.Validate(); err != nil {
		return "", fmt.Errorf("invalid unit config: %w", err)
	}

	var args []string
	args = append(args, data.BinaryPath, "monitor", "--interval", fmt.Sprintf("%d", data.Interval))
	if data.AutoRestart {
		args = append(args, "--auto-restart")
	}
	if data.ServeAddr != "" {
		args = append(args, "--serve", data.ServeAddr)
	}

	unit := struct {
		User      string
		ExecStart string
	}{
		User:      data.User,
		ExecStart: strings.Join(args, " "),
	}

	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, unit); err != nil {
		return "", fmt.Errorf("failed to execute unit template: %w", err)
	}

	return buf.String(), nil
}
