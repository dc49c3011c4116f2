package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events <name>",
	Short: "Display the lifecycle event log for a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

var eventsJSON bool

func init() {
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Output events as JSON lines")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	name := args[0]

	if _, err := loadRun(name); err != nil {
		return err
	}

	eventLog := events.NewLogger(paths())
	list, err := eventLog.Events(name)
	if err != nil {
		return errors.DataError("failed to read event log", err)
	}

	if len(list) == 0 {
		logInfo("No events found for run %s", name)
		return nil
	}

	for _, e := range list {
		if eventsJSON {
			data, err := json.Marshal(e)
			if err != nil {
				return errors.DataError("failed to marshal event", err)
			}
			fmt.Println(string(data))
		} else {
			ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
			if e.Details != "" {
				fmt.Printf("[%s] %-8s %s (%s)\n", ts, e.Type, e.Run, e.Details)
			} else {
				fmt.Printf("[%s] %-8s %s\n", ts, e.Type, e.Run)
			}
		}
	}

	return nil
}
