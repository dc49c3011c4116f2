package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/invocation"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/logging"
)

var trainCmd = &cobra.Command{
	Use:   "train <exp_name>",
	Short: "Launch a training run",
	Long: `Composes and launches a trainer invocation:

  train_igp.py --exp_name <name> --options k1=v1,k2=v2,...

Options come from the base config file (--config), then repeated
-o/--option flags and the --options list, later sources winning.
The run gets a free GPU slot, a run directory with the resolved
option snapshot, and a captured log.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

var (
	trainOptions    []string
	trainOptionList string
	trainConfig     string
	trainGPU        int
	trainDetach     bool
	trainDryRun     bool
	trainFollow     bool
)

func init() {
	trainCmd.Flags().StringArrayVarP(&trainOptions, "option", "o", nil, "Dotted option override key=value (repeatable)")
	trainCmd.Flags().StringVar(&trainOptionList, "options", "", "Comma-joined dotted option overrides k1=v1,k2=v2")
	trainCmd.Flags().StringVar(&trainConfig, "config", "", "Base config YAML merged below the overrides")
	trainCmd.Flags().IntVar(&trainGPU, "gpu", -1, "Pin a GPU device id (default: allocate a free slot)")
	trainCmd.Flags().BoolVarP(&trainDetach, "detach", "d", false, "Launch in the background and return immediately")
	trainCmd.Flags().BoolVar(&trainDryRun, "dry-run", false, "Print the composed command line without launching")
	trainCmd.Flags().BoolVarP(&trainFollow, "follow", "f", false, "Stream child output to the terminal as well as the log")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx, stop := signalContext()
	defer stop()

	if err := config.ValidateRunName(name); err != nil {
		return errors.ValidationError(err.Error())
	}

	logging.Debug("composing training run", "run", name, "config", trainConfig)

	cliSet, err := gatherOverrides(trainOptionList, trainOptions, nil)
	if err != nil {
		return err
	}

	cfg, err := toolConfig()
	if err != nil {
		return errors.ConfigError("failed to load tool config", err)
	}

	set, err := launcher.ComposeOptions(cfg, &config.Manifest{BaseConfig: trainConfig}, cliSet)
	if err != nil {
		return err
	}

	l := launcher.New(paths(), cfg, getRunner())
	result, err := l.Launch(ctx, launcher.LaunchOptions{
		Name:      name,
		Program:   config.ProgramTrain,
		Overrides: set,
		GPU:       trainGPU,
		Detach:    trainDetach,
		Tee:       trainFollow,
		DryRun:    trainDryRun,
	})
	if err != nil {
		return err
	}

	if trainDryRun {
		fmt.Println(invocation.CommandLine(result.Argv))
		return nil
	}

	if trainDetach {
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
