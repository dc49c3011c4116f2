package launcher

import (
	"os"
	"path/filepath"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/overrides"
)

// ComposeOptions merges the option sources for a manifest-driven launch
// in precedence order: base config file, then manifest options, then
// extra command-line overrides. Later pairs win when the tree is built.
func ComposeOptions(cfg *config.ToolConfig, m *config.Manifest, extra *overrides.Set) (*overrides.Set, error) {
	set := overrides.NewSet()

	if m.BaseConfig != "" {
		path := m.BaseConfig
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.ProjectRoot, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.ConfigError("failed to read base config", err)
		}
		tree, err := overrides.LoadYAML(data)
		if err != nil {
			return nil, errors.ConfigError("invalid base config", err)
		}
		fromBase, err := overrides.FromMap(tree)
		if err != nil {
			return nil, errors.OverrideError("invalid base config keys", err)
		}
		set.Merge(fromBase)
	}

	if len(m.Options) > 0 {
		fromManifest, err := overrides.FromMap(m.Options)
		if err != nil {
			return nil, errors.OverrideError("invalid manifest options", err)
		}
		set.Merge(fromManifest)
	}

	set.Merge(extra)
	return set, nil
}
