package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/invocation"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/overrides"
	"github.com/polonav/igpctl/internal/teleop"
)

var evalCmd = &cobra.Command{
	Use:   "eval <exp_name> [KEY=value ...]",
	Short: "Launch an evaluation run",
	Long: `Composes and launches an evaluator invocation:

  eval_agent.py [--save_video] [--no_render] [--no_interactive]
      --eval_eps_total_num <n> --exp_name <name> --eval_policy <p>
      [--gt_semantic] [--skip_existing] --gpu_id <n> [KEY=value ...]

Positional KEY=value arguments after the experiment name are dotted
option overrides appended verbatim to the child command line.

With --interactive the evaluator runs attached and igpctl drives it
with keyboard teleop (w/a/d to move, s to stop, Esc to quit).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEval,
}

var (
	evalEpisodes     int
	evalPolicy       string
	evalGTSemantic   bool
	evalSaveVideo    bool
	evalNoRender     bool
	evalInteractive  bool
	evalSkipExisting bool
	evalGPU          int
	evalDetach       bool
	evalDryRun       bool
)

func init() {
	evalCmd.Flags().IntVar(&evalEpisodes, "episodes", 0, "Number of evaluation episodes (required)")
	evalCmd.Flags().StringVar(&evalPolicy, "policy", "", "Evaluation policy, e.g. ur or rl (required)")
	evalCmd.Flags().BoolVar(&evalGTSemantic, "gt-semantic", false, "Use ground-truth semantic segmentation")
	evalCmd.Flags().BoolVar(&evalSaveVideo, "save-video", false, "Save episode videos")
	evalCmd.Flags().BoolVar(&evalNoRender, "no-render", false, "Disable the child's rendering window")
	evalCmd.Flags().BoolVar(&evalInteractive, "interactive", false, "Drive the evaluator interactively with keyboard teleop")
	evalCmd.Flags().BoolVar(&evalSkipExisting, "skip-existing", false, "Skip episodes (and a finished run) that already exist")
	evalCmd.Flags().IntVar(&evalGPU, "gpu", -1, "Pin a GPU device id (default: allocate a free slot)")
	evalCmd.Flags().BoolVarP(&evalDetach, "detach", "d", false, "Launch in the background and return immediately")
	evalCmd.Flags().BoolVar(&evalDryRun, "dry-run", false, "Print the composed command line without launching")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx, stop := signalContext()
	defer stop()

	if err := config.ValidateRunName(name); err != nil {
		return errors.ValidationError(err.Error())
	}
	if evalInteractive && evalDetach {
		return errors.ValidationError("--interactive and --detach are mutually exclusive")
	}

	logging.Debug("composing evaluation run",
		"run", name, "policy", evalPolicy, "episodes", evalEpisodes)

	set, err := gatherOverrides("", nil, args[1:])
	if err != nil {
		return err
	}

	l, err := newLauncher()
	if err != nil {
		return err
	}

	eval := &config.EvalSettings{
		Episodes:     evalEpisodes,
		Policy:       evalPolicy,
		GTSemantic:   evalGTSemantic,
		SaveVideo:    evalSaveVideo,
		NoRender:     evalNoRender,
		Interactive:  evalInteractive,
		SkipExisting: evalSkipExisting,
	}

	if evalInteractive {
		return runEvalInteractive(ctx, l, name, set, eval)
	}

	result, err := l.Launch(ctx, launcher.LaunchOptions{
		Name:         name,
		Program:      config.ProgramEval,
		Overrides:    set,
		Eval:         eval,
		GPU:          evalGPU,
		Detach:       evalDetach,
		DryRun:       evalDryRun,
		SkipExisting: evalSkipExisting,
	})
	if err != nil {
		return err
	}

	if evalDryRun {
		fmt.Println(invocation.CommandLine(result.Argv))
		return nil
	}

	if result.Skipped {
		logInfo("Run %s already finished, skipping", name)
		return nil
	}

	if evalDetach {
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

// runEvalInteractive launches the evaluator attached, with a pipe on its
// stdin, and drives it with keyboard teleop. The child's output stays in
// the run log so the teleop view owns the terminal; closing the pipe on
// exit hands the evaluator an EOF to wrap up on.
func runEvalInteractive(ctx context.Context, l *launcher.Launcher, name string, set *overrides.Set, eval *config.EvalSettings) error {
	pr, pw, err := os.Pipe()
	if err != nil {
		return errors.ProcessFailed("pipe", err)
	}
	defer pr.Close()
	defer pw.Close()

	type outcome struct {
		result *launcher.LaunchResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, lerr := l.Launch(ctx, launcher.LaunchOptions{
			Name:         name,
			Program:      config.ProgramEval,
			Overrides:    set,
			Eval:         eval,
			GPU:          evalGPU,
			Quiet:        true,
			Stdin:        pr,
			SkipExisting: eval.SkipExisting,
		})
		if lerr != nil {
			// Break the pipe so the teleop session notices the
			// failed launch on its next keypress.
			pr.Close()
		}
		done <- outcome{result, lerr}
	}()

	teleopErr := teleop.Run(pw)
	pw.Close()

	out := <-done
	if out.err != nil {
		return out.err
	}
	if teleopErr != nil {
		return errors.ProcessFailed("teleop", teleopErr)
	}
	if out.result.ExitCode != 0 {
		return errors.New(out.result.ExitCode,
			fmt.Sprintf("run %s exited with code %d", name, out.result.ExitCode))
	}
	logSuccess("Run %s finished", name)
	return nil
}
