package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/invocation"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/logging"
)

var launchCmd = &cobra.Command{
	Use:   "launch <manifest>",
	Short: "Launch the run described by an experiment manifest",
	Long: `Launches a run from a YAML experiment manifest. The manifest names
the program (train or eval), a base config, option overrides, extra
environment, and evaluator settings.

The argument is a manifest name under $IGPCTL_HOME/experiments, or a
path to a manifest file. Manifests with sweep axes are launched with
"igpctl sweep" instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runLaunch,
}

var (
	launchName       string
	launchOptions    []string
	launchOptionList string
	launchGPU        int
	launchDetach     bool
	launchDryRun     bool
)

func init() {
	launchCmd.Flags().StringVar(&launchName, "name", "", "Run name (default: the manifest name)")
	launchCmd.Flags().StringArrayVarP(&launchOptions, "option", "o", nil, "Dotted option override key=value (repeatable)")
	launchCmd.Flags().StringVar(&launchOptionList, "options", "", "Comma-joined dotted option overrides k1=v1,k2=v2")
	launchCmd.Flags().IntVar(&launchGPU, "gpu", -1, "Pin a GPU device id (default: allocate a free slot)")
	launchCmd.Flags().BoolVarP(&launchDetach, "detach", "d", false, "Launch in the background and return immediately")
	launchCmd.Flags().BoolVar(&launchDryRun, "dry-run", false, "Print the composed command line without launching")
	rootCmd.AddCommand(launchCmd)
}

// loadManifestArg resolves a manifest argument: a path when it looks
// like one, otherwise a name under the manifests directory.
func loadManifestArg(arg string) (*config.Manifest, error) {
	if strings.ContainsRune(arg, '/') || strings.HasSuffix(arg, ".yaml") || strings.HasSuffix(arg, ".yml") {
		m, err := config.LoadManifestFile(arg)
		if err != nil {
			return nil, errors.ConfigError("failed to load manifest", err)
		}
		return m, nil
	}

	m, err := config.LoadManifest(paths().ManifestsDir, arg)
	if err != nil {
		return nil, errors.ManifestNotFound(arg)
	}
	return m, nil
}

func runLaunch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	manifest, err := loadManifestArg(args[0])
	if err != nil {
		return err
	}

	if len(manifest.Sweep) > 0 {
		return errors.ValidationError(fmt.Sprintf(
			"manifest %s declares sweep axes; use: igpctl sweep %s", manifest.Name, args[0]))
	}

	name := launchName
	if name == "" {
		name = manifest.Name
	}

	logging.Debug("launching from manifest",
		"manifest", manifest.Name, "run", name, "program", manifest.Program)

	cliSet, err := gatherOverrides(launchOptionList, launchOptions, nil)
	if err != nil {
		return err
	}

	cfg, err := toolConfig()
	if err != nil {
		return errors.ConfigError("failed to load tool config", err)
	}

	set, err := launcher.ComposeOptions(cfg, manifest, cliSet)
	if err != nil {
		return err
	}

	skipExisting := manifest.Eval != nil && manifest.Eval.SkipExisting

	l := launcher.New(paths(), cfg, getRunner())
	result, err := l.Launch(ctx, launcher.LaunchOptions{
		Name:         name,
		Experiment:   manifest.Name,
		Program:      manifest.Program,
		Manifest:     manifest.Name,
		Overrides:    set,
		Env:          manifest.Env,
		Eval:         manifest.Eval,
		GPU:          launchGPU,
		Detach:       launchDetach,
		DryRun:       launchDryRun,
		SkipExisting: skipExisting,
	})
	if err != nil {
		return err
	}

	if launchDryRun {
		fmt.Println(invocation.CommandLine(result.Argv))
		return nil
	}

	if result.Skipped {
		logInfo("Run %s already finished, skipping", name)
		return nil
	}

	if launchDetach {
		logSuccess("Run %s started", name)
		fmt.Printf("  PID: %d\n", result.Record.PID)
		fmt.Printf("  GPU: %d\n", result.Record.GPU)
		fmt.Printf("  Logs: igpctl logs %s -f\n", name)
		return nil
	}

	if result.ExitCode != 0 {
		return errors.New(result.ExitCode,
			fmt.Sprintf("run %s exited with code %d", name, result.ExitCode))
	}
	logSuccess("Run %s finished", name)
	return nil
}
