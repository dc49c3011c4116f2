package runner

import (
	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/system"
)

// Interpreter resolves the Python interpreter prefix for child command
// lines. The prefix composes with script paths and arguments, so a bare
// interpreter and a `conda run` wrapper are handled identically.
//
// Resolution order:
//  1. an explicit python binary from the tool config
//  2. `conda run -n <env> python` when a conda environment is configured
//  3. python3, then python, from PATH
func Interpreter(cfg *config.ToolConfig) ([]string, error) {
	look := system.DefaultExecutor()

	if cfg != nil && cfg.Python != "" {
		path, err := look.LookPath(cfg.Python)
		if err != nil {
			return nil, errors.EnvError("python interpreter %q not found in PATH", cfg.Python)
		}
		logging.Debug("using configured interpreter", "python", path)
		return []string{path}, nil
	}

	if cfg != nil && cfg.CondaEnv != "" {
		conda, err := look.LookPath("conda")
		if err != nil {
			return nil, errors.EnvError("conda environment %q configured but conda not found in PATH", cfg.CondaEnv)
		}
		logging.Debug("using conda interpreter", "conda", conda, "env", cfg.CondaEnv)
		return []string{conda, "run", "--no-capture-output", "-n", cfg.CondaEnv, "python"}, nil
	}

	for _, name := range []string{"python3", "python"} {
		if path, err := look.LookPath(name); err == nil {
			logging.Debug("detected interpreter", "python", path)
			return []string{path}, nil
		}
	}

	return nil, errors.EnvError("no python interpreter found (tried: python3, python); set python or conda_env in igpctl.toml")
}
