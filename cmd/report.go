package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <name>",
	Short: "Render a run's report in the terminal",
	Long: `Composes a markdown report from the run's record, resolved options,
episode metrics and event timeline, saves it as report.md in the run
directory, and renders it in the terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

var reportRaw bool

func init() {
	reportCmd.Flags().BoolVar(&reportRaw, "raw", false, "Print the raw markdown without terminal styling")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	name := args[0]

	gen := report.New(paths(), getRunner())
	path, err := gen.Write(name)
	if err != nil {
		return err
	}
	logInfo("Report saved to %s", path)

	markdown, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if reportRaw {
		fmt.Print(string(markdown))
		return nil
	}
	fmt.Print(report.Render(string(markdown)))
	return nil
}
