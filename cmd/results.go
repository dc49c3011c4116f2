package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/results"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Aggregate evaluation metrics across runs",
	Long: `Indexes every run's episodes.jsonl into the results database, then
prints per-run aggregates (success rate, SPL, distance to goal, steps,
checked area). Use --run for a single run's per-episode breakdown.`,
	RunE: runResults,
}

var (
	resultsExperiment string
	resultsPolicy     string
	resultsRun        string
)

func init() {
	resultsCmd.Flags().StringVar(&resultsExperiment, "experiment", "", "Only show runs of this experiment")
	resultsCmd.Flags().StringVar(&resultsPolicy, "policy", "", "Only show runs evaluated with this policy")
	resultsCmd.Flags().StringVar(&resultsRun, "run", "", "Show per-episode metrics for one run")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	store, err := results.Open(paths().ResultsDBPath())
	if err != nil {
		return errors.DataError("failed to open results index", err)
	}
	defer store.Close()

	indexed, err := results.Sync(store, paths())
	if err != nil {
		return errors.DataError("failed to index episode results", err)
	}
	logging.Debug("results index synced", "runs", indexed, "path", store.Path())

	if resultsRun != "" {
		return printEpisodes(store, resultsRun)
	}

	summaries, err := store.Query(results.Filter{
		Experiment: resultsExperiment,
		Policy:     resultsPolicy,
	})
	if err != nil {
		return errors.DataError("failed to query results index", err)
	}

	if len(summaries) == 0 {
		logInfo("No episode results indexed yet. Evaluations append episodes.jsonl as they run.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tEXPERIMENT\tPOLICY\tEPISODES\tSUCCESS\tSPL\tDIST\tSTEPS\tAREA")
	fmt.Fprintln(w, "---\t----------\t------\t--------\t-------\t---\t----\t-----\t----")

	for _, rs := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f%%\t%.3f\t%.2f\t%.0f\t%.1f\n",
			rs.Run, rs.Experiment, rs.Policy, rs.Episodes,
			rs.SuccessRate*100, rs.MeanSPL, rs.MeanDistance, rs.MeanSteps,
			rs.MeanCheckedArea)
	}

	return w.Flush()
}

func printEpisodes(store *results.Store, run string) error {
	if _, err := loadRun(run); err != nil {
		return err
	}

	episodes, err := store.Episodes(run)
	if err != nil {
		return errors.DataError("failed to read indexed episodes", err)
	}
	if len(episodes) == 0 {
		logInfo("No episodes indexed for run %s", run)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EPISODE\tSCENE\tGOAL\tSUCCESS\tSPL\tDIST\tSTEPS\tAREA")
	fmt.Fprintln(w, "-------\t-----\t----\t-------\t---\t----\t-----\t----")

	for _, ep := range episodes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.3f\t%.2f\t%d\t%.1f\n",
			ep.EpisodeID, ep.Scene, ep.Goal, boolStatus(ep.Success),
			ep.SPL, ep.DistanceToGoal, ep.Steps, ep.CheckedArea)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	summary := results.Summarize(episodes)
	fmt.Printf("\n%d episodes, %.1f%% success, mean SPL %.3f\n",
		summary.Episodes, summary.SuccessRate*100, summary.MeanSPL)
	return nil
}
