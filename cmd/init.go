package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/generator"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/tui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up the igpctl directory layout and starter files",
	Long: `Creates the config, manifests and state directories, writes a commented
igpctl.toml, and drops example train and eval manifests to edit.

With no flags an interactive wizard collects the project root, the
interpreter source, default GPUs and the dataset directory. Flags skip
the wizard:

  igpctl init --root ~/src/polo --conda-env igp --gpus 0,1

Existing files are kept unless --force is given.`,
	RunE: runInit,
}

var (
	initRoot     string
	initPython   string
	initCondaEnv string
	initGPUs     string
	initData     string
	initForce    bool
)

func init() {
	initCmd.Flags().StringVar(&initRoot, "root", "", "Project root containing train_igp.py and eval_agent.py")
	initCmd.Flags().StringVar(&initPython, "python", "", "Explicit python interpreter for child processes")
	initCmd.Flags().StringVar(&initCondaEnv, "conda-env", "", "Conda environment to launch through 'conda run'")
	initCmd.Flags().StringVar(&initGPUs, "gpus", "", "Comma-separated CUDA device ids (e.g. 0,1)")
	initCmd.Flags().StringVar(&initData, "data", "", "Default dataset directory")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite generated files that already exist")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	opts, err := gatherInitOptions()
	if err != nil {
		return err
	}
	if opts == nil {
		logInfo("Setup cancelled")
		return nil
	}

	created, err := scaffoldWorkspace(opts)
	if err != nil {
		return err
	}

	if len(created) == 0 {
		logInfo("Everything already in place (use --force to regenerate)")
		return nil
	}
	for _, path := range created {
		logInfo("Created %s", path)
	}
	logSuccess("igpctl is set up")
	logInfo("Next: review %s, then try: igpctl manifests", config.ToolConfigPath(paths().ConfigDir))
	return nil
}

// gatherInitOptions resolves setup answers from flags, or from the wizard
// when no flags were given. A nil result means the wizard was cancelled.
func gatherInitOptions() (*tui.InitOptions, error) {
	flagged := initRoot != "" || initPython != "" || initCondaEnv != "" ||
		initGPUs != "" || initData != ""
	if !flagged {
		logging.Debug("no init flags given, starting wizard")
		opts, err := tui.RunWizard()
		if err != nil {
			return nil, fmt.Errorf("setup wizard failed: %w", err)
		}
		return opts, nil
	}

	if initRoot == "" {
		return nil, errors.ValidationError("--root is required when skipping the wizard")
	}
	if initPython != "" && initCondaEnv != "" {
		return nil, errors.ValidationError("--python and --conda-env are mutually exclusive")
	}
	gpus, err := config.ParseGPUList(initGPUs)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid --gpus: %v", err))
	}

	return &tui.InitOptions{
		ProjectRoot: initRoot,
		Python:      initPython,
		CondaEnv:    initCondaEnv,
		GPUs:        gpus,
		DataDir:     initData,
	}, nil
}

// scaffoldWorkspace creates the directory layout and generated files,
// returning the paths it wrote. Files that already exist are skipped
// unless --force is set.
func scaffoldWorkspace(opts *tui.InitOptions) ([]string, error) {
	p := paths()
	for _, dir := range []string{p.ConfigDir, p.ManifestsDir, p.StateDir, p.RunsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.ConfigError("failed to create directory", err)
		}
	}

	var created []string

	toolConfig, err := generator.GenerateToolConfig(&generator.ToolConfigData{
		ProjectRoot: opts.ProjectRoot,
		Python:      opts.Python,
		CondaEnv:    opts.CondaEnv,
		GPUs:        opts.GPUs,
		DataDir:     opts.DataDir,
	})
	if err != nil {
		return nil, err
	}
	wrote, err := writeGenerated(config.ToolConfigPath(p.ConfigDir), toolConfig)
	if err != nil {
		return nil, err
	}
	if wrote {
		created = append(created, config.ToolConfigPath(p.ConfigDir))
	}

	examples := []generator.ManifestData{
		{
			Name:        "base_train",
			Description: "Baseline information-gain training run",
			Program:     config.ProgramTrain,
		},
		{
			Name:        "ig_eval",
			Description: "Evaluate the information-gain policy",
			Program:     config.ProgramEval,
			Episodes:    200,
			Policy:      "ig",
		},
	}
	for i := range examples {
		manifest, err := generator.GenerateManifest(&examples[i])
		if err != nil {
			return nil, err
		}
		path := filepath.Join(p.ManifestsDir, examples[i].Name+".yaml")
		wrote, err := writeGenerated(path, manifest)
		if err != nil {
			return nil, err
		}
		if wrote {
			created = append(created, path)
		}
	}

	return created, nil
}

// writeGenerated writes content to path, honoring --force for existing
// files. Returns whether the file was written.
func writeGenerated(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			logging.Debug("skipping existing file", "path", path)
			return false, nil
		} else if !os.IsNotExist(err) {
			return false, errors.DataError("failed to stat "+path, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, errors.DataError("failed to write "+path, err)
	}
	return true, nil
}
