package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/events"
	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/runner"
	"github.com/polonav/igpctl/internal/statusserver"
)

type monitorEnv struct {
	paths *config.Paths
	mock  *runner.MockRunner
	l     *launcher.Launcher
}

func newMonitorEnv(t *testing.T) *monitorEnv {
	t.Helper()
	paths := config.PathsUnder(t.TempDir())
	cfg := &config.ToolConfig{
		ProjectRoot: t.TempDir(),
		TrainScript: "train_igp.py",
		EvalScript:  "eval_agent.py",
		GPUs:        []int{0},
	}
	mock := runner.NewMockRunner()
	l := launcher.New(paths, cfg, mock)
	l.Interpreter = []string{"/usr/bin/python3"}
	return &monitorEnv{paths: paths, mock: mock, l: l}
}

func (e *monitorEnv) saveRecord(t *testing.T, rec *config.RunRecord) {
	t.Helper()
	if err := config.SaveRunRecord(e.paths.RunsDir, rec); err != nil {
		t.Fatalf("SaveRunRecord failed: %v", err)
	}
}

func (e *monitorEnv) freshRecord(name string, pid int) *config.RunRecord {
	return &config.RunRecord{
		Name:       name,
		Experiment: name,
		Program:    config.ProgramTrain,
		PID:        pid,
		Argv:       []string{"/usr/bin/python3", "train_igp.py", "--exp_name", name},
		WorkDir:    "/tmp",
		CreatedAt:  time.Now().Format(time.RFC3339),
		Status:     config.StatusRunning,
	}
}

func writeFreshLog(t *testing.T, paths *config.Paths, name string) {
	t.Helper()
	runDir, err := paths.RunDir(name)
	if err != nil {
		t.Fatalf("RunDir failed: %v", err)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(config.LogPath(runDir), []byte("step 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestMonitor_New(t *testing.T) {
	env := newMonitorEnv(t)

	m := New(30*time.Second, env.paths, env.mock, env.l)
	if m.interval != 30*time.Second {
		t.Errorf("interval = %v, want %v", m.interval, 30*time.Second)
	}
	if m.autoRestart {
		t.Error("autoRestart should default to false")
	}
	if m.metrics != nil {
		t.Error("metrics should default to nil")
	}
}

func TestMonitor_NewDefaultInterval(t *testing.T) {
	env := newMonitorEnv(t)
	m := New(0, env.paths, env.mock, env.l)
	if m.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", m.interval, DefaultInterval)
	}
}

func TestMonitor_Options(t *testing.T) {
	env := newMonitorEnv(t)
	server := statusserver.New(env.paths, env.mock)

	m := New(time.Minute, env.paths, env.mock, env.l,
		WithAutoRestart(true),
		WithWatch(true),
		WithMetrics(server.Metrics()),
	)

	if !m.autoRestart {
		t.Error("autoRestart should be true")
	}
	if !m.watch {
		t.Error("watch should be true")
	}
	if m.metrics == nil {
		t.Error("metrics should be set")
	}
}

func TestMonitor_CheckAllEmpty(t *testing.T) {
	env := newMonitorEnv(t)
	m := New(time.Second, env.paths, env.mock, env.l)

	results := m.checkAll(context.Background())
	if len(results) != 0 {
		t.Errorf("got %d results, want 0 for empty runs dir", len(results))
	}
}

func TestMonitor_CheckAllHealthy(t *testing.T) {
	env := newMonitorEnv(t)

	pid := env.mock.AddProc("steady", true)
	env.saveRecord(t, env.freshRecord("steady", pid))
	writeFreshLog(t, env.paths, "steady")

	m := New(time.Second, env.paths, env.mock, env.l)
	results := m.checkAll(context.Background())

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Run != "steady" || results[0].Status != health.StatusRunning {
		t.Errorf("result = %+v, want steady/running", results[0])
	}
}

func TestMonitor_ReconcileGoneProcess(t *testing.T) {
	env := newMonitorEnv(t)

	// Record claims a live process, but the runner knows nothing of it.
	env.saveRecord(t, env.freshRecord("vanished", 12345))

	m := New(time.Second, env.paths, env.mock, env.l)
	m.checkAll(context.Background())

	rec, err := config.LoadRunRecord(env.paths.RunsDir, "vanished")
	if err != nil {
		t.Fatalf("LoadRunRecord failed: %v", err)
	}
	if rec.Status != config.StatusFailed {
		t.Errorf("status = %q, want %q", rec.Status, config.StatusFailed)
	}
	if rec.ExitCode == nil || *rec.ExitCode != -1 {
		t.Error("exit code should record an unobservable exit as -1")
	}

	evts, err := events.NewLogger(env.paths).Events("vanished")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	var sawHealth bool
	for _, ev := range evts {
		if ev.Type == events.EventHealth {
			sawHealth = true
		}
	}
	if !sawHealth {
		t.Error("expected a health event for the gone process")
	}
}

func TestMonitor_AutoRestart(t *testing.T) {
	env := newMonitorEnv(t)

	manifest := "name: retry\nprogram: train\nrestart:\n  max_restarts: 2\n"
	if err := os.MkdirAll(env.paths.ManifestsDir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(env.paths.ManifestsDir, "retry.yaml"), []byte(manifest), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec := env.freshRecord("retry-a", 23456)
	rec.Manifest = "retry"
	env.saveRecord(t, rec)

	m := New(time.Second, env.paths, env.mock, env.l, WithAutoRestart(true))
	m.checkAll(context.Background())

	restarted, err := config.LoadRunRecord(env.paths.RunsDir, "retry-a")
	if err != nil {
		t.Fatalf("LoadRunRecord failed: %v", err)
	}
	if restarted.Status != config.StatusRunning {
		t.Errorf("status = %q, want running after auto-restart", restarted.Status)
	}
	if restarted.Restarts != 1 {
		t.Errorf("restarts = %d, want 1", restarted.Restarts)
	}
	if n := len(env.mock.GetCallsFor("Start")); n != 1 {
		t.Errorf("got %d Start calls, want 1", n)
	}
}

func TestMonitor_RestartBudgetExhausted(t *testing.T) {
	env := newMonitorEnv(t)

	manifest := "name: retry\nprogram: train\nrestart:\n  max_restarts: 1\n"
	if err := os.MkdirAll(env.paths.ManifestsDir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(env.paths.ManifestsDir, "retry.yaml"), []byte(manifest), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec := env.freshRecord("retry-b", 34567)
	rec.Manifest = "retry"
	rec.Restarts = 1
	env.saveRecord(t, rec)

	m := New(time.Second, env.paths, env.mock, env.l, WithAutoRestart(true))
	m.checkAll(context.Background())

	after, err := config.LoadRunRecord(env.paths.RunsDir, "retry-b")
	if err != nil {
		t.Fatalf("LoadRunRecord failed: %v", err)
	}
	if after.Status != config.StatusFailed {
		t.Errorf("status = %q, want failed (budget exhausted)", after.Status)
	}
	if n := len(env.mock.GetCallsFor("Start")); n != 0 {
		t.Errorf("got %d Start calls, want 0", n)
	}
}

func TestMonitor_NoRestartWithoutManifest(t *testing.T) {
	env := newMonitorEnv(t)

	env.saveRecord(t, env.freshRecord("adhoc", 45678))

	m := New(time.Second, env.paths, env.mock, env.l, WithAutoRestart(true))
	m.checkAll(context.Background())

	if n := len(env.mock.GetCallsFor("Start")); n != 0 {
		t.Errorf("got %d Start calls, want 0 for a manifest-less run", n)
	}
}

func TestMonitor_Metrics(t *testing.T) {
	env := newMonitorEnv(t)
	server := statusserver.New(env.paths, env.mock)

	pid := env.mock.AddProc("measured", true)
	env.saveRecord(t, env.freshRecord("measured", pid))
	writeFreshLog(t, env.paths, "measured")

	m := New(time.Second, env.paths, env.mock, env.l, WithMetrics(server.Metrics()))
	ctx := context.Background()

	m.checkAll(ctx)
	if got := testutil.ToFloat64(server.Metrics().Running); got != 1 {
		t.Errorf("running gauge = %v, want 1", got)
	}

	// The process dies; the next sweep reconciles, the one after
	// observes the recorded transition.
	if err := env.mock.Stop(ctx, pid, 0); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	m.checkAll(ctx)
	m.checkAll(ctx)

	if got := testutil.ToFloat64(server.Metrics().Running); got != 0 {
		t.Errorf("running gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(server.Metrics().Failed); got != 1 {
		t.Errorf("failed counter = %v, want 1", got)
	}
}

func TestMonitor_RunCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newMonitorEnv(t)
	m := New(100*time.Millisecond, env.paths, env.mock, env.l, WithWatch(true))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	// Let it run briefly then cancel.
	time.Sleep(250 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after context cancellation")
	}
}
