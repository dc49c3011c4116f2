package sweep

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/overrides"
	"github.com/polonav/igpctl/internal/runner"
)

func gridManifest() *config.Manifest {
	return &config.Manifest{
		Name:    "grid",
		Program: config.ProgramTrain,
		Options: map[string]any{"net": map[string]any{"c1": 24}},
		Sweep: []config.SweepAxis{
			{Key: "net.c0", Values: []any{32, 48, 64}},
		},
	}
}

func newTestSweeper(t *testing.T) (*Sweeper, *runner.MockRunner, *config.Paths) {
	t.Helper()

	paths := config.PathsUnder(t.TempDir())
	cfg := &config.ToolConfig{
		ProjectRoot: t.TempDir(),
		TrainScript: "train_igp.py",
		EvalScript:  "eval_agent.py",
		GPUs:        []int{0, 1},
	}
	mock := runner.NewMockRunner()

	l := launcher.New(paths, cfg, mock)
	l.Interpreter = []string{"/usr/bin/python3"}

	return New(paths, cfg, l), mock, paths
}

func TestExpand(t *testing.T) {
	m := &config.Manifest{
		Name:    "igp",
		Program: config.ProgramTrain,
		Sweep: []config.SweepAxis{
			{Key: "AGENT.IG_PLANNER.utility_exp", Values: []any{1.0, 1.5}},
			{Key: "net.c0", Values: []any{32, 48, 64}},
		},
	}

	variants, err := Expand(m)
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(variants) != 6 {
		t.Fatalf("got %d variants, want 6", len(variants))
	}

	// The last axis varies fastest.
	wantNames := []string{
		"igp-1-32", "igp-1-48", "igp-1-64",
		"igp-1-5-32", "igp-1-5-48", "igp-1-5-64",
	}
	for i, v := range variants {
		if v.Name != wantNames[i] {
			t.Errorf("variant %d name = %q, want %q", i, v.Name, wantNames[i])
		}
		if v.Index != i {
			t.Errorf("variant %d index = %d", i, v.Index)
		}
		if len(v.Pairs) != 2 {
			t.Fatalf("variant %d has %d pairs, want 2", i, len(v.Pairs))
		}
		if v.Pairs[0].Key != "AGENT.IG_PLANNER.utility_exp" || v.Pairs[1].Key != "net.c0" {
			t.Errorf("variant %d pair keys = %q, %q", i, v.Pairs[0].Key, v.Pairs[1].Key)
		}
	}

	// Spot-check an assignment.
	last := variants[5]
	if last.Pairs[0].Raw != "1.5" || last.Pairs[1].Raw != "64" {
		t.Errorf("last variant pairs = %v, want 1.5 and 64", last.Pairs)
	}
}

func TestExpand_NoAxes(t *testing.T) {
	m := &config.Manifest{Name: "flat", Program: config.ProgramTrain}
	if _, err := Expand(m); err == nil {
		t.Error("expected error for manifest without sweep axes")
	}
}

func TestVariantOverrides_AxisWins(t *testing.T) {
	base, err := overrides.ParseList("net.c0=16,lr=0.001")
	if err != nil {
		t.Fatalf("ParseList failed: %v", err)
	}

	pair, err := overrides.NewPair("net.c0", 48)
	if err != nil {
		t.Fatalf("NewPair failed: %v", err)
	}
	v := Variant{Name: "x-48", Pairs: []overrides.Pair{pair}}

	set := v.Overrides(base)
	got, ok := set.Get("net.c0")
	if !ok || got != 48 {
		t.Errorf("net.c0 = %v, want 48 (axis value)", got)
	}
	if _, ok := set.Get("lr"); !ok {
		t.Error("base pair lr missing from variant set")
	}
}

func TestSweepRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	sweeper, mock, paths := newTestSweeper(t)

	summary, err := sweeper.Run(context.Background(), gridManifest(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Finished != 3 {
		t.Errorf("finished = %d, want 3", summary.Finished)
	}
	if summary.Failures() != 0 {
		t.Errorf("failures = %d, want 0", summary.Failures())
	}

	// Every variant has a persisted record attributed to the manifest.
	for _, name := range []string{"grid-32", "grid-48", "grid-64"} {
		rec, err := config.LoadRunRecord(paths.RunsDir, name)
		if err != nil {
			t.Fatalf("record %s missing: %v", name, err)
		}
		if rec.Status != config.StatusFinished {
			t.Errorf("%s status = %q, want finished", name, rec.Status)
		}
		if rec.Manifest != "grid" {
			t.Errorf("%s manifest = %q, want grid", name, rec.Manifest)
		}
	}

	// Children only ever ran on configured devices.
	starts := mock.GetCallsFor("Start")
	if len(starts) != 3 {
		t.Fatalf("got %d Start calls, want 3", len(starts))
	}
	for _, call := range starts {
		spec := call.Args[0].(runner.StartSpec)
		if spec.GPU != 0 && spec.GPU != 1 {
			t.Errorf("start on gpu %d, want 0 or 1", spec.GPU)
		}
	}
}

func TestSweepRun_OptionsComposition(t *testing.T) {
	sweeper, mock, _ := newTestSweeper(t)

	extra, err := overrides.ParseList("lr=0.001")
	if err != nil {
		t.Fatalf("ParseList failed: %v", err)
	}

	if _, err := sweeper.Run(context.Background(), gridManifest(), Options{Extra: extra}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Each child sees manifest options, then extras, then its axis value.
	for _, call := range mock.GetCallsFor("Start") {
		spec := call.Args[0].(runner.StartSpec)
		options := spec.Argv[len(spec.Argv)-1]
		wantSuffix := "net.c0=" + strings.TrimPrefix(spec.Name, "grid-")
		if !strings.HasPrefix(options, "net.c1=24,lr=0.001,") || !strings.HasSuffix(options, wantSuffix) {
			t.Errorf("%s options = %q, want manifest then extra then axis", spec.Name, options)
		}
	}
}

func TestSweepRun_FailedVariant(t *testing.T) {
	sweeper, mock, _ := newTestSweeper(t)
	mock.SetExitCode("grid-48", 1)

	summary, err := sweeper.Run(context.Background(), gridManifest(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Finished != 2 || summary.Failed != 1 {
		t.Errorf("finished/failed = %d/%d, want 2/1", summary.Finished, summary.Failed)
	}
	if summary.Failures() != 1 {
		t.Errorf("failures = %d, want 1", summary.Failures())
	}

	for _, o := range summary.Outcomes {
		if o.Variant.Name == "grid-48" && o.Status != config.StatusFailed {
			t.Errorf("grid-48 status = %q, want failed", o.Status)
		}
	}
}

func TestSweepRun_NoFreeGPUs(t *testing.T) {
	sweeper, _, paths := newTestSweeper(t)

	// Both devices held by live runs.
	for i, name := range []string{"hog-a", "hog-b"} {
		rec := &config.RunRecord{
			Name:       name,
			Experiment: name,
			Program:    config.ProgramTrain,
			GPU:        i,
			Argv:       []string{"python3"},
			WorkDir:    "/tmp",
			CreatedAt:  "2026-01-01T00:00:00Z",
			Status:     config.StatusRunning,
		}
		if err := config.SaveRunRecord(paths.RunsDir, rec); err != nil {
			t.Fatalf("SaveRunRecord failed: %v", err)
		}
	}

	_, err := sweeper.Run(context.Background(), gridManifest(), Options{})
	if err == nil {
		t.Fatal("expected GPU exhaustion error")
	}
	if errors.GetExitCode(err) != errors.ExitGPUAllocation {
		t.Errorf("exit code = %d, want %d", errors.GetExitCode(err), errors.ExitGPUAllocation)
	}
}

func TestSweepRun_SkipExisting(t *testing.T) {
	sweeper, mock, _ := newTestSweeper(t)

	// First pass completes the whole grid.
	if _, err := sweeper.Run(context.Background(), gridManifest(), Options{}); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	mock.Reset()

	summary, err := sweeper.Run(context.Background(), gridManifest(), Options{SkipExisting: true})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if summary.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", summary.Skipped)
	}
	if n := len(mock.GetCallsFor("Start")); n != 0 {
		t.Errorf("got %d Start calls on resume, want 0", n)
	}
}

func TestSweepRun_Canceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	sweeper, mock, _ := newTestSweeper(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := sweeper.Run(ctx, gridManifest(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Canceled != 3 {
		t.Errorf("canceled = %d, want 3", summary.Canceled)
	}
	if n := len(mock.GetCallsFor("Start")); n != 0 {
		t.Errorf("got %d Start calls after cancel, want 0", n)
	}
}

func TestSweepRun_ParallelCap(t *testing.T) {
	sweeper, mock, _ := newTestSweeper(t)

	summary, err := sweeper.Run(context.Background(), gridManifest(), Options{Parallel: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Finished != 3 {
		t.Errorf("finished = %d, want 3", summary.Finished)
	}

	// A single slot means every variant ran on the first free device.
	for _, call := range mock.GetCallsFor("Start") {
		spec := call.Args[0].(runner.StartSpec)
		if spec.GPU != 0 {
			t.Errorf("start on gpu %d, want 0", spec.GPU)
		}
	}
}

func TestSweepRun_InvalidManifest(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t)

	m := gridManifest()
	m.Program = "serve"
	if _, err := sweeper.Run(context.Background(), m, Options{}); err == nil {
		t.Error("expected error for invalid manifest")
	}
}
