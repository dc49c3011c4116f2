package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <manifest>",
	Short: "Run a hyperparameter sweep from a manifest",
	Long: `Expands the manifest's sweep axes into the cartesian product of
variants and runs them concurrently, one per free GPU slot. The sweep
blocks until every variant has finished, failed, or been stopped.

Ctrl-C interrupts every running variant's process group and marks the
affected runs stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSweep,
}

var (
	sweepOptions      []string
	sweepOptionList   string
	sweepParallel     int
	sweepSkipExisting bool
)

func init() {
	sweepCmd.Flags().StringArrayVarP(&sweepOptions, "option", "o", nil, "Dotted option override applied to every variant (repeatable)")
	sweepCmd.Flags().StringVar(&sweepOptionList, "options", "", "Comma-joined dotted option overrides applied to every variant")
	sweepCmd.Flags().IntVar(&sweepParallel, "parallel", 0, "Cap concurrent variants (default: one per free GPU)")
	sweepCmd.Flags().BoolVar(&sweepSkipExisting, "skip-existing", false, "Skip variants whose run already finished (resume a sweep)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	manifest, err := loadManifestArg(args[0])
	if err != nil {
		return err
	}

	extra, err := gatherOverrides(sweepOptionList, sweepOptions, nil)
	if err != nil {
		return err
	}

	cfg, err := toolConfig()
	if err != nil {
		return errors.ConfigError("failed to load tool config", err)
	}

	l := launcher.New(paths(), cfg, getRunner())
	s := sweep.New(paths(), cfg, l)

	summary, err := s.Run(ctx, manifest, sweep.Options{
		Extra:        extra,
		Parallel:     sweepParallel,
		SkipExisting: sweepSkipExisting,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tSTATUS\tEXIT")
	fmt.Fprintln(w, "-------\t------\t----")
	for _, o := range summary.Outcomes {
		status, exit := outcomeCells(o)
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.Variant.Name, status, exit)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d finished, %d failed, %d stopped, %d skipped",
		summary.Finished, summary.Failed, summary.Stopped, summary.Skipped)
	if summary.Canceled > 0 {
		fmt.Printf(", %d canceled", summary.Canceled)
	}
	if summary.Errored > 0 {
		fmt.Printf(", %d errored", summary.Errored)
	}
	fmt.Println()

	if n := summary.Failures(); n > 0 {
		return errors.New(errors.ExitGeneralError,
			fmt.Sprintf("%d of %d variants failed", n, len(summary.Outcomes)))
	}
	return nil
}

func outcomeCells(o sweep.Outcome) (status, exit string) {
	switch {
	case stderrors.Is(o.Err, context.Canceled):
		return "canceled", "-"
	case o.Err != nil:
		return fmt.Sprintf("error: %v", o.Err), "-"
	case o.Skipped:
		return "skipped", "-"
	case o.Status == config.StatusFinished || o.Status == config.StatusFailed:
		return o.Status, fmt.Sprintf("%d", o.ExitCode)
	default:
		return o.Status, "-"
	}
}
