// Package condaenv reads the project's conda environment descriptor and
// checks the interpreter against it. The descriptor is parsed and hashed,
// never solved; dependency resolution stays with conda.
package condaenv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/system"
)

// Dependency is a single conda package spec, name[=version[=build]].
type Dependency struct {
	Name    string
	Version string
	Build   string
}

// String renders the spec back in conda form.
func (d Dependency) String() string {
	s := d.Name
	if d.Version != "" {
		s += "=" + d.Version
	}
	if d.Build != "" {
		s += "=" + d.Build
	}
	return s
}

// Environment is a parsed environment.yml.
type Environment struct {
	Name     string
	Channels []string
	Conda    []Dependency
	Pip      []string
}

type rawEnvironment struct {
	Name         string   `yaml:"name"`
	Channels     []string `yaml:"channels"`
	Dependencies []any    `yaml:"dependencies"`
}

// Parse parses an environment.yml document. Dependencies are either
// plain specs or a nested pip block; anything else is rejected.
func Parse(data []byte) (*Environment, error) {
	var raw rawEnvironment
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.EnvError("failed to parse environment descriptor: %v", err)
	}
	if raw.Name == "" {
		return nil, errors.EnvError("environment descriptor has no name")
	}

	env := &Environment{
		Name:     raw.Name,
		Channels: raw.Channels,
	}

	for _, entry := range raw.Dependencies {
		switch v := entry.(type) {
		case string:
			env.Conda = append(env.Conda, parseDependency(v))
		case map[string]any:
			pip, ok := v["pip"]
			if !ok {
				return nil, errors.EnvError("unsupported dependency block with keys %v", mapKeys(v))
			}
			items, ok := pip.([]any)
			if !ok {
				return nil, errors.EnvError("pip block is not a list")
			}
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					return nil, errors.EnvError("pip entry %v is not a string", item)
				}
				env.Pip = append(env.Pip, s)
			}
		default:
			return nil, errors.EnvError("unsupported dependency entry %v", entry)
		}
	}

	return env, nil
}

// Load reads and parses the descriptor at path.
func Load(path string) (*Environment, error) {
	data, err := system.DefaultFS().ReadFile(path)
	if err != nil {
		return nil, errors.EnvError("failed to read environment descriptor %s: %v", path, err)
	}
	return Parse(data)
}

func parseDependency(spec string) Dependency {
	parts := strings.SplitN(spec, "=", 3)
	d := Dependency{Name: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		d.Version = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		d.Build = strings.TrimSpace(parts[2])
	}
	return d
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Hash returns a short content hash of the descriptor. Channel and
// dependency order matter to conda, so document order is preserved.
func (e *Environment) Hash() string {
	h := sha256.New()
	fmt.Fprintln(h, "name:", e.Name)
	for _, c := range e.Channels {
		fmt.Fprintln(h, "channel:", c)
	}
	for _, d := range e.Conda {
		fmt.Fprintln(h, "dep:", d.String())
	}
	for _, p := range e.Pip {
		fmt.Fprintln(h, "pip:", p)
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// PythonVersion returns the pinned python version, empty if unpinned.
func (e *Environment) PythonVersion() string {
	for _, d := range e.Conda {
		if d.Name == "python" {
			return d.Version
		}
	}
	return ""
}

// Lookup returns the conda spec for a package name.
func (e *Environment) Lookup(name string) (Dependency, bool) {
	for _, d := range e.Conda {
		if d.Name == name {
			return d, true
		}
	}
	return Dependency{}, false
}

// VerifyResult describes how the live interpreter compares to the
// descriptor's pins.
type VerifyResult struct {
	PythonWant string
	PythonGot  string
	PythonOK   bool
}

// Verify runs the resolved interpreter and compares its version against
// the descriptor's python pin. A prefix match satisfies the pin, so a
// pin of 3.9 accepts 3.9.16.
func Verify(ctx context.Context, env *Environment, interpreter []string) (*VerifyResult, error) {
	if len(interpreter) == 0 {
		return nil, errors.EnvError("no interpreter to verify")
	}

	args := append(interpreter[1:], "--version")
	out, err := system.DefaultExecutor().Execute(ctx, interpreter[0], args...)
	if err != nil {
		return nil, errors.EnvError("failed to query interpreter version: %v", err)
	}

	got := parsePythonVersion(string(out))
	if got == "" {
		return nil, errors.EnvError("unrecognized interpreter version output %q", strings.TrimSpace(string(out)))
	}

	want := env.PythonVersion()
	result := &VerifyResult{
		PythonWant: want,
		PythonGot:  got,
		PythonOK:   want == "" || versionSatisfies(got, want),
	}
	return result, nil
}

// parsePythonVersion extracts the version from "Python 3.9.16" output.
func parsePythonVersion(out string) string {
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "Python" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func versionSatisfies(got, want string) bool {
	return got == want || strings.HasPrefix(got, want+".")
}

// Snapshot captures the full resolved environment via conda env export.
// The output is stored beside the run record for reproducibility.
func Snapshot(ctx context.Context, envName string) ([]byte, error) {
	if envName == "" {
		return nil, errors.EnvError("no conda environment configured; set conda_env in igpctl.toml")
	}
	out, err := system.DefaultExecutor().Execute(ctx, "conda", "env", "export", "-n", envName)
	if err != nil {
		return nil, errors.EnvError("conda env export failed: %v", err)
	}
	return out, nil
}
