package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "igpctl",
	Short: "Experiment control plane for IGP training and evaluation",
	Long: `igpctl composes and launches runs of the project's external training
and evaluation programs (train_igp.py, eval_agent.py), supervises the
resulting processes, and records run metadata, events and results.

Runs are configured with dotted-key overrides (net.c0=48), given on the
command line or through YAML experiment manifests. Each run gets a GPU
slot, a log file and a lifecycle event trail under $IGPCTL_HOME
(default ~/.igpctl).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, jsonOutput, os.Stderr)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
	logError   = logging.UserError
)
