package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/condaenv"
	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/runner"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Check and snapshot the conda environment",
}

var envVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare the live interpreter against the environment descriptor",
	Long: `Parses the project's environment.yml and queries the interpreter the
launcher would use. A python version mismatch is reported as a warning;
no packages are installed or resolved.`,
	RunE: runEnvVerify,
}

var envSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export the resolved conda environment",
	Long: `Runs conda env export for the configured environment. With --run the
export is stored beside the run's record for reproducibility, otherwise
it is written to stdout.`,
	RunE: runEnvSnapshot,
}

var envSnapshotRun string

func init() {
	envSnapshotCmd.Flags().StringVar(&envSnapshotRun, "run", "", "Store the snapshot in this run's directory")
	envCmd.AddCommand(envVerifyCmd)
	envCmd.AddCommand(envSnapshotCmd)
	rootCmd.AddCommand(envCmd)
}

func runEnvVerify(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := toolConfig()
	if err != nil {
		return errors.ConfigError("failed to load tool config", err)
	}

	env, err := condaenv.Load(cfg.EnvironmentPath())
	if err != nil {
		return err
	}

	fmt.Printf("Environment: %s\n", env.Name)
	fmt.Printf("Hash: %s\n", env.Hash())
	fmt.Printf("Conda packages: %d\n", len(env.Conda))
	fmt.Printf("Pip packages: %d\n", len(env.Pip))

	interp, err := runner.Interpreter(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Interpreter: %s\n", strings.Join(interp, " "))

	result, err := condaenv.Verify(ctx, env, interp)
	if err != nil {
		return err
	}

	switch {
	case result.PythonWant == "":
		logInfo("Descriptor pins no python version; interpreter is %s", result.PythonGot)
	case result.PythonOK:
		logSuccess("Python %s satisfies the pinned %s", result.PythonGot, result.PythonWant)
	default:
		logWarning("Python %s does not match the pinned %s", result.PythonGot, result.PythonWant)
	}
	return nil
}

func runEnvSnapshot(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := toolConfig()
	if err != nil {
		return errors.ConfigError("failed to load tool config", err)
	}

	out, err := condaenv.Snapshot(ctx, cfg.CondaEnv)
	if err != nil {
		return err
	}

	if envSnapshotRun == "" {
		_, err = os.Stdout.Write(out)
		return err
	}

	record, err := loadRun(envSnapshotRun)
	if err != nil {
		return err
	}
	runDir, err := paths().RunDir(record.Name)
	if err != nil {
		return err
	}

	path := config.EnvSnapshotPath(runDir)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.DataError("failed to write environment snapshot", err)
	}
	logSuccess("Environment snapshot saved to %s", path)
	return nil
}
