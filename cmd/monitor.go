package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/polonav/igpctl/internal/generator"
	"github.com/polonav/igpctl/internal/monitor"
	"github.com/polonav/igpctl/internal/statusserver"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch active runs and reconcile dead ones",
	Long: `Periodically checks every active run record against its live process
and log freshness. Records whose process has vanished are marked failed
and, with --auto-restart, relaunched within the manifest's restart
budget. Runs in the foreground until interrupted.

With --serve, run state and Prometheus metrics are exposed over HTTP:

  GET /runs                 all runs with health
  GET /runs/{name}          one run
  GET /runs/{name}/events   the run's event log
  GET /metrics              Prometheus metrics
  GET /healthz

For persistent monitoring, --print-unit emits a systemd service file
built from the other flags:

  igpctl monitor --interval 60 --auto-restart --serve :9290 --print-unit \
    | sudo tee /etc/systemd/system/igpctl-monitor.service`,
	RunE: runMonitor,
}

var (
	monitorInterval    int
	monitorAutoRestart bool
	monitorServe       string
	monitorNoWatch     bool
	monitorPrintUnit   bool
	monitorUnitUser    string
)

func init() {
	monitorCmd.Flags().IntVar(&monitorInterval, "interval", 30, "Check interval in seconds")
	monitorCmd.Flags().BoolVar(&monitorAutoRestart, "auto-restart", false, "Automatically relaunch failed runs")
	monitorCmd.Flags().StringVar(&monitorServe, "serve", "", "Serve run state and metrics on this address (e.g. :9290)")
	monitorCmd.Flags().BoolVar(&monitorNoWatch, "no-watch", false, "Poll only, don't wake on run directory changes")
	monitorCmd.Flags().BoolVar(&monitorPrintUnit, "print-unit", false, "Print a systemd unit for this monitor invocation and exit")
	monitorCmd.Flags().StringVar(&monitorUnitUser, "unit-user", "", "User= value for the generated unit")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorPrintUnit {
		return printMonitorUnit()
	}

	l, err := newLauncher()
	if err != nil {
		return err
	}

	interval := time.Duration(monitorInterval) * time.Second

	opts := []monitor.Option{
		monitor.WithWatch(!monitorNoWatch),
	}
	if monitorAutoRestart {
		opts = append(opts, monitor.WithAutoRestart(true))
	}

	var srv *statusserver.Server
	if monitorServe != "" {
		srv = statusserver.New(paths(), getRunner())
		opts = append(opts, monitor.WithMetrics(srv.Metrics()))
	}

	mon := monitor.New(interval, paths(), getRunner(), l, opts...)

	logInfo("Starting run monitor (interval: %ds, auto-restart: %v)", monitorInterval, monitorAutoRestart)

	ctx, stop := signalContext()
	defer stop()

	if srv != nil {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error { return srv.ListenAndServe(egCtx, monitorServe) })
		eg.Go(func() error { return mon.Run(egCtx) })
		err = eg.Wait()
	} else {
		err = mon.Run(ctx)
	}

	if stderrors.Is(err, context.Canceled) {
		logInfo("Monitor stopped")
		return nil
	}
	return err
}

func printMonitorUnit() error {
	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve igpctl binary path: %w", err)
	}

	unit, err := generator.GenerateSystemdUnit(&generator.UnitData{
		BinaryPath:  binary,
		User:        monitorUnitUser,
		Interval:    monitorInterval,
		ServeAddr:   monitorServe,
		AutoRestart: monitorAutoRestart,
	})
	if err != nil {
		return err
	}
	fmt.Print(unit)
	return nil
}
