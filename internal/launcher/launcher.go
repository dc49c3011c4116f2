// Package launcher provides high-level run creation: it turns a resolved
// experiment description into a recorded, supervised child process.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/polonav/igpctl/internal/condaenv"
	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/events"
	"github.com/polonav/igpctl/internal/gitinfo"
	"github.com/polonav/igpctl/internal/gpu"
	"github.com/polonav/igpctl/internal/invocation"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/overrides"
	"github.com/polonav/igpctl/internal/runner"
)

// Launcher handles run creation with all necessary dependencies.
type Launcher struct {
	paths  *config.Paths
	cfg    *config.ToolConfig
	run    runner.Runner
	events *events.Logger

	// Interpreter overrides interpreter detection when set. Tests use
	// this to avoid probing PATH.
	Interpreter []string
}

// New creates a Launcher over explicit dependencies.
func New(paths *config.Paths, cfg *config.ToolConfig, r runner.Runner) *Launcher {
	return &Launcher{
		paths:  paths,
		cfg:    cfg,
		run:    r,
		events: events.NewLogger(paths),
	}
}

// NewDefault creates a Launcher with the default paths, tool config and
// the global runner.
func NewDefault() (*Launcher, error) {
	paths := config.DefaultPaths()

	cfg, err := config.LoadToolConfig(paths.ConfigDir)
	if err != nil {
		return nil, errors.ConfigError("failed to load tool config", err)
	}

	return New(paths, cfg, runner.Global()), nil
}

// LaunchOptions describes one run to create.
type LaunchOptions struct {
	// Name is the run name (required, unique).
	Name string

	// Experiment is the exp_name passed to the child. Defaults to Name.
	Experiment string

	// Program selects the entry point, train or eval.
	Program string

	// Manifest records which manifest produced this run, if any.
	Manifest string

	// Overrides is the fully merged option set
	// (base config < manifest options < command line).
	Overrides *overrides.Set

	// Env is extra environment for the child, from the manifest.
	Env map[string]string

	// Eval carries the evaluator knobs. Required for eval runs.
	Eval *config.EvalSettings

	// GPU pins a device. Negative means allocate from the pool.
	GPU int

	// Detach launches in the background and returns immediately.
	Detach bool

	// Tee streams child output to the terminal as well as the log.
	Tee bool

	// Quiet suppresses terminal echo for foreground runs. Sweeps set
	// this so variant output stays in the per-run logs.
	Quiet bool

	// Stdin connects the child's standard input. Interactive evaluation
	// feeds teleop actions through it; nil for everything else.
	Stdin io.Reader

	// DryRun composes the command line without creating anything.
	DryRun bool

	// SkipExisting short-circuits when a finished run of this name exists.
	SkipExisting bool
}

// LaunchResult reports what Launch did.
type LaunchResult struct {
	// Record is the persisted run state, nil for dry runs.
	Record *config.RunRecord

	// Argv is the composed child command line.
	Argv []string

	// ExitCode is the child's exit code for foreground runs.
	ExitCode int

	// Skipped reports that an existing finished run satisfied the launch.
	Skipped bool
}

// Launch creates and starts a run.
func (l *Launcher) Launch(ctx context.Context, opts LaunchOptions) (*LaunchResult, error) {
	logging.Debug("starting launch", "run", opts.Name, "program", opts.Program)

	if opts.Experiment == "" {
		opts.Experiment = opts.Name
	}

	if err := config.ValidateRunName(opts.Name); err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	if config.RunExists(l.paths.RunsDir, opts.Name) {
		existing, err := config.LoadRunRecord(l.paths.RunsDir, opts.Name)
		if err == nil && opts.SkipExisting && existing.Status == config.StatusFinished {
			logging.Debug("run already finished, skipping", "run", opts.Name)
			return &LaunchResult{Record: existing, Argv: existing.Argv, Skipped: true}, nil
		}
		return nil, errors.ValidationError(fmt.Sprintf("run %s already exists", opts.Name))
	}

	// Reject override sets that cannot form a config tree before anything
	// is allocated or written.
	set := opts.Overrides
	if set == nil {
		set = overrides.NewSet()
	}
	tree, err := set.Tree()
	if err != nil {
		return nil, errors.OverrideError("conflicting option overrides", err)
	}

	argv, err := l.composeArgv(opts, set)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &LaunchResult{Argv: argv}, nil
	}

	device, err := l.pickDevice(opts)
	if err != nil {
		return nil, err
	}
	logging.Debug("gpu slot allocated", "run", opts.Name, "gpu", device)

	// Eval runs pass the device on the child command line as well.
	if opts.Program == config.ProgramEval {
		argv, err = l.composeEvalArgv(opts, set, device)
		if err != nil {
			return nil, err
		}
	}

	record := &config.RunRecord{
		Name:       opts.Name,
		ID:         newRunID(),
		Experiment: opts.Experiment,
		Program:    opts.Program,
		Manifest:   opts.Manifest,
		GPU:        device,
		Argv:       argv,
		WorkDir:    l.cfg.ProjectRoot,
		Env:        flattenEnv(opts.Env),
		CreatedAt:  time.Now().Format(time.RFC3339),
		Status:     config.StatusPending,
	}
	if opts.Eval != nil {
		record.Policy = opts.Eval.Policy
		record.Episodes = opts.Eval.Episodes
	}

	l.captureProvenance(ctx, record)

	runDir, err := l.paths.RunDir(opts.Name)
	if err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	cleanup := func() {
		if err := config.DeleteRun(l.paths.RunsDir, opts.Name); err != nil {
			logging.Warn("failed to clean up run directory", "run", opts.Name, "error", err)
		}
	}

	if err := config.SaveRunRecord(l.paths.RunsDir, record); err != nil {
		return nil, errors.ConfigError("failed to save run record", err)
	}

	if err := l.writeOptionsSnapshot(runDir, tree); err != nil {
		cleanup()
		return nil, err
	}

	_ = l.events.LogEvent(events.EventLaunch, opts.Name,
		fmt.Sprintf("program=%s gpu=%d", opts.Program, device))

	spec := runner.StartSpec{
		Name:    opts.Name,
		Argv:    argv,
		Dir:     l.cfg.ProjectRoot,
		Env:     record.Env,
		GPU:     device,
		LogPath: config.LogPath(runDir),
		Tee:     (!opts.Detach && !opts.Quiet) || opts.Tee,
		Stdin:   opts.Stdin,
	}

	proc, err := l.run.Start(ctx, spec)
	if err != nil {
		cleanup()
		return nil, errors.ProcessFailed("start", err)
	}

	record.PID = proc.PID
	record.Status = config.StatusRunning
	if err := config.SaveRunRecord(l.paths.RunsDir, record); err != nil {
		logging.Warn("failed to update run record", "run", opts.Name, "error", err)
	}
	_ = l.events.LogEvent(events.EventStart, opts.Name, fmt.Sprintf("pid=%d", proc.PID))

	if opts.Detach {
		if err := proc.Release(); err != nil {
			logging.Warn("failed to release child", "run", opts.Name, "error", err)
		}
		return &LaunchResult{Record: record, Argv: argv}, nil
	}

	code, err := l.waitForeground(ctx, record, proc)
	if err != nil {
		return nil, err
	}
	return &LaunchResult{Record: record, Argv: argv, ExitCode: code}, nil
}

// Relaunch starts a finished or failed run again with its recorded
// command line, environment and device. Used by the monitor's
// auto-restart and by manual retries.
func (l *Launcher) Relaunch(ctx context.Context, name string) (*config.RunRecord, error) {
	record, err := config.LoadRunRecord(l.paths.RunsDir, name)
	if err != nil {
		return nil, errors.RunNotFound(name)
	}
	if record.Active() {
		return nil, errors.ValidationError(fmt.Sprintf("run %s is still active", name))
	}

	runDir, err := l.paths.RunDir(name)
	if err != nil {
		return nil, errors.ValidationError(err.Error())
	}

	proc, err := l.run.Start(ctx, runner.StartSpec{
		Name:    name,
		Argv:    record.Argv,
		Dir:     record.WorkDir,
		Env:     record.Env,
		GPU:     record.GPU,
		LogPath: config.LogPath(runDir),
	})
	if err != nil {
		return nil, errors.ProcessFailed("restart", err)
	}

	record.PID = proc.PID
	record.Status = config.StatusRunning
	record.ExitCode = nil
	record.Restarts++
	if err := config.SaveRunRecord(l.paths.RunsDir, record); err != nil {
		logging.Warn("failed to update run record", "run", name, "error", err)
	}
	_ = l.events.LogEvent(events.EventRestart, name,
		fmt.Sprintf("pid=%d restarts=%d", proc.PID, record.Restarts))

	if err := proc.Release(); err != nil {
		logging.Warn("failed to release child", "run", name, "error", err)
	}
	return record, nil
}

// Finalize records a child's exit. The monitor and the foreground path
// both funnel through here so status transitions stay consistent.
func (l *Launcher) Finalize(name string, code int) error {
	record, err := config.LoadRunRecord(l.paths.RunsDir, name)
	if err != nil {
		return errors.RunNotFound(name)
	}

	record.ExitCode = &code
	if code == 0 {
		record.Status = config.StatusFinished
		_ = l.events.LogEvent(events.EventFinish, name, "exit=0")
	} else {
		record.Status = config.StatusFailed
		_ = l.events.LogEvent(events.EventFail, name, fmt.Sprintf("exit=%d", code))
	}

	return config.SaveRunRecord(l.paths.RunsDir, record)
}

func (l *Launcher) waitForeground(ctx context.Context, record *config.RunRecord, proc *runner.Process) (int, error) {
	type waitResult struct {
		code int
		err  error
	}
	done := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		done <- waitResult{code, err}
	}()

	var res waitResult
	select {
	case res = <-done:
	case <-ctx.Done():
		// Interrupt the child's process group and collect its exit.
		logging.Debug("interrupting foreground run", "run", record.Name, "pid", proc.PID)
		if err := l.run.Stop(context.Background(), proc.PID, 0); err != nil {
			logging.Warn("failed to stop child", "run", record.Name, "error", err)
		}
		res = <-done
		_ = l.events.LogEvent(events.EventStop, record.Name, "interrupted")
		record.Status = config.StatusStopped
		record.ExitCode = &res.code
		if err := config.SaveRunRecord(l.paths.RunsDir, record); err != nil {
			logging.Warn("failed to update run record", "run", record.Name, "error", err)
		}
		return res.code, nil
	}

	if res.err != nil {
		return -1, errors.ProcessFailed("wait", res.err)
	}
	if err := l.Finalize(record.Name, res.code); err != nil {
		logging.Warn("failed to finalize run", "run", record.Name, "error", err)
	}
	// Keep the caller's view of the record current.
	if updated, err := config.LoadRunRecord(l.paths.RunsDir, record.Name); err == nil {
		*record = *updated
	}
	return res.code, nil
}

func (l *Launcher) composeArgv(opts LaunchOptions, set *overrides.Set) ([]string, error) {
	builder, err := l.builder(opts.Program)
	if err != nil {
		return nil, err
	}

	switch opts.Program {
	case config.ProgramTrain:
		argv, err := builder.TrainArgv(invocation.TrainSpec{
			ExpName: opts.Experiment,
			Options: set,
		})
		if err != nil {
			return nil, errors.ValidationError(err.Error())
		}
		return argv, nil

	case config.ProgramEval:
		// Dry runs compose without a real device; the final argv is
		// recomposed once a slot is held.
		device := opts.GPU
		if device < 0 {
			device = 0
		}
		return l.composeEvalArgv(opts, set, device)

	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown program %q", opts.Program))
	}
}

func (l *Launcher) composeEvalArgv(opts LaunchOptions, set *overrides.Set, device int) ([]string, error) {
	if opts.Eval == nil {
		return nil, errors.ValidationError("eval settings are required for eval runs")
	}

	builder, err := l.builder(config.ProgramEval)
	if err != nil {
		return nil, err
	}

	argv, err := builder.EvalArgv(invocation.EvalSpec{
		ExpName:       opts.Experiment,
		Episodes:      opts.Eval.Episodes,
		Policy:        opts.Eval.Policy,
		GPUID:         device,
		SaveVideo:     opts.Eval.SaveVideo,
		NoRender:      opts.Eval.NoRender,
		NoInteractive: !opts.Eval.Interactive,
		GTSemantic:    opts.Eval.GTSemantic,
		SkipExisting:  opts.Eval.SkipExisting,
		Overrides:     set,
	})
	if err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	return argv, nil
}

func (l *Launcher) builder(program string) (*invocation.Builder, error) {
	interpreter := l.Interpreter
	if len(interpreter) == 0 {
		resolved, err := runner.Interpreter(l.cfg)
		if err != nil {
			return nil, err
		}
		interpreter = resolved
	}

	script, err := l.cfg.ScriptPath(program)
	if err != nil {
		return nil, errors.ConfigError("cannot resolve program script", err)
	}

	return &invocation.Builder{Interpreter: interpreter, Script: script}, nil
}

func (l *Launcher) pickDevice(opts LaunchOptions) (int, error) {
	if opts.GPU >= 0 {
		return opts.GPU, nil
	}

	runs, err := config.ListRuns(l.paths.RunsDir)
	if err != nil {
		return -1, errors.ConfigError("failed to list runs", err)
	}
	return gpu.Allocate(l.cfg.GPUs, runs)
}

func (l *Launcher) writeOptionsSnapshot(runDir string, tree map[string]any) error {
	data, err := overrides.DumpYAML(tree)
	if err != nil {
		return errors.OverrideError("failed to serialize options", err)
	}
	if err := os.WriteFile(config.OptionsPath(runDir), data, 0644); err != nil {
		return errors.ConfigError("failed to write options snapshot", err)
	}
	return nil
}

// captureProvenance records the git revision and environment hash.
// Both are best-effort: a missing checkout or descriptor degrades to an
// unattributed run.
func (l *Launcher) captureProvenance(ctx context.Context, record *config.RunRecord) {
	if gitinfo.IsRepo(l.cfg.ProjectRoot) {
		if info, err := gitinfo.Capture(ctx, l.cfg.ProjectRoot); err == nil {
			record.GitRevision = info.Revision
			record.GitDirty = info.Dirty
		} else {
			logging.Warn("failed to capture git state", "error", err)
		}
	}

	if env, err := condaenv.Load(l.cfg.EnvironmentPath()); err == nil {
		record.EnvHash = env.Hash()
	} else {
		logging.Debug("no environment descriptor", "path", l.cfg.EnvironmentPath())
	}
}

// newRunID mints a short identifier for a launch. Run names may be
// reused after removal; the id stays unique across reincarnations.
func newRunID() string {
	return uuid.New().String()[:8]
}

// flattenEnv renders an env map as sorted KEY=VALUE entries.
func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
