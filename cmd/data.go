package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/dataset"
	"github.com/polonav/igpctl/internal/errors"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Inspect recorded exploration datasets",
}

var dataStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a dataset split",
	RunE:  runDataStats,
}

var dataVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Decode every frame of a split and report defects",
	RunE:  runDataVerify,
}

var (
	dataDir   string
	dataSplit string
)

func init() {
	dataCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Dataset root (default: data_dir from igpctl.toml)")
	dataCmd.PersistentFlags().StringVar(&dataSplit, "split", "train", "Dataset split (train or val)")
	dataCmd.AddCommand(dataStatsCmd)
	dataCmd.AddCommand(dataVerifyCmd)
	rootCmd.AddCommand(dataCmd)
}

// resolveDataDir returns the --data flag value or the configured
// default.
func resolveDataDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := toolConfig()
	if err != nil {
		return "", errors.ConfigError("failed to load tool config", err)
	}
	if cfg.DataDir == "" {
		return "", errors.ValidationError("no dataset directory: pass --data or set data_dir in igpctl.toml")
	}
	return cfg.DataDir, nil
}

func runDataStats(cmd *cobra.Command, args []string) error {
	dir, err := resolveDataDir(dataDir)
	if err != nil {
		return err
	}

	stats, err := dataset.CollectStats(dir, dataSplit)
	if err != nil {
		return errors.DataError(fmt.Sprintf("failed to scan split %s", dataSplit), err)
	}

	if stats.Episodes == 0 {
		logInfo("Split %s has no episodes under %s", dataSplit, dir)
		return nil
	}

	fmt.Printf("Split: %s\n", stats.Split)
	fmt.Printf("Episodes: %d\n", stats.Episodes)
	fmt.Printf("Frames: %d\n", stats.Frames)
	fmt.Printf("Detections: %d\n", stats.Detections)
	fmt.Printf("Size: %s\n", formatBytes(stats.Bytes))
	fmt.Printf("Scenes: %d (%s)\n", len(stats.Scenes), strings.Join(stats.Scenes, ", "))
	fmt.Println()

	// Goal categories, most frequent first.
	goals := make([]string, 0, len(stats.Goals))
	for goal := range stats.Goals {
		goals = append(goals, goal)
	}
	sort.Slice(goals, func(i, j int) bool {
		if stats.Goals[goals[i]] != stats.Goals[goals[j]] {
			return stats.Goals[goals[i]] > stats.Goals[goals[j]]
		}
		return goals[i] < goals[j]
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GOAL\tEPISODES")
	fmt.Fprintln(w, "----\t--------")
	for _, goal := range goals {
		fmt.Fprintf(w, "%s\t%d\n", goal, stats.Goals[goal])
	}
	return w.Flush()
}

func runDataVerify(cmd *cobra.Command, args []string) error {
	dir, err := resolveDataDir(dataDir)
	if err != nil {
		return err
	}

	problems, err := dataset.Verify(dir, dataSplit)
	if err != nil {
		return errors.DataError(fmt.Sprintf("failed to verify split %s", dataSplit), err)
	}

	if len(problems) == 0 {
		logSuccess("Split %s verified clean", dataSplit)
		return nil
	}

	for _, p := range problems {
		fmt.Println(p)
	}
	return errors.New(errors.ExitDataError,
		fmt.Sprintf("split %s has %d problems", dataSplit, len(problems)))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
