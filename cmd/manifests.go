package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/config"
)

var manifestsCmd = &cobra.Command{
	Use:   "manifests",
	Short: "List available experiment manifests",
	RunE:  runManifests,
}

func init() {
	rootCmd.AddCommand(manifestsCmd)
}

func runManifests(cmd *cobra.Command, args []string) error {
	manifests, err := config.ListManifests(paths().ManifestsDir)
	if err != nil {
		return fmt.Errorf("failed to list manifests: %w", err)
	}

	if len(manifests) == 0 {
		logInfo("No manifests found. Add experiment YAML files under %s", paths().ManifestsDir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPROGRAM\tEPISODES\tVARIANTS\tDESCRIPTION")
	fmt.Fprintln(w, "----\t-------\t--------\t--------\t-----------")

	for _, m := range manifests {
		episodes := "-"
		if m.Eval != nil && m.Eval.Episodes > 0 {
			episodes = fmt.Sprintf("%d", m.Eval.Episodes)
		}

		variants := "-"
		if len(m.Sweep) > 0 {
			n := 1
			for _, axis := range m.Sweep {
				n *= len(axis.Values)
			}
			variants = fmt.Sprintf("%d", n)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.Program, episodes, variants, m.Description)
	}

	return w.Flush()
}
