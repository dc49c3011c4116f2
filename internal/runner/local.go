package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/polonav/igpctl/internal/logging"
)

// DefaultGrace is how long Stop waits after SIGINT before escalating.
// Interrupted trainers flush a checkpoint on SIGINT, which can take a
// while on large maps.
const DefaultGrace = 30 * time.Second

// LocalRunner runs children as local OS processes. Each child gets its
// own process group so that signals reach the whole Python process tree,
// including dataloader workers.
type LocalRunner struct {
	// Grace is the default Stop escalation delay.
	Grace time.Duration
}

// NewLocalRunner creates a local process runner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{Grace: DefaultGrace}
}

// Name returns the runner identifier
func (r *LocalRunner) Name() string {
	return "local"
}

func (r *LocalRunner) prepare(spec StartSpec) (*exec.Cmd, *os.File, error) {
	if len(spec.Argv) == 0 {
		return nil, nil, fmt.Errorf("empty command line")
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = childEnv(spec)
	cmd.Stdin = spec.Stdin
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var logFile *os.File
	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(spec.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open run log: %w", err)
		}
		logFile = f
	}

	switch {
	case logFile != nil && spec.Tee:
		cmd.Stdout = io.MultiWriter(os.Stdout, logFile)
		cmd.Stderr = io.MultiWriter(os.Stderr, logFile)
	case logFile != nil:
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	case spec.Tee:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	return cmd, logFile, nil
}

// childEnv builds the child environment: the inherited environment plus
// spec.Env, with CUDA_VISIBLE_DEVICES pinned when a device is assigned.
func childEnv(spec StartSpec) []string {
	env := os.Environ()
	if spec.GPU >= 0 {
		env = append(env, fmt.Sprintf("CUDA_VISIBLE_DEVICES=%d", spec.GPU))
	}
	env = append(env, spec.Env...)
	return env
}

// Start launches a child in its own process group and returns immediately.
func (r *LocalRunner) Start(ctx context.Context, spec StartSpec) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd, logFile, err := r.prepare(spec)
	if err != nil {
		return nil, err
	}

	logging.Debug("starting child", "run", spec.Name, "argv", spec.Argv, "gpu", spec.GPU)

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Argv[0], err)
	}

	pid := cmd.Process.Pid
	proc := &Process{
		PID:       pid,
		StartedAt: time.Now(),
		wait: func() (int, error) {
			err := cmd.Wait()
			if logFile != nil {
				logFile.Close()
			}
			return exitCode(err)
		},
		release: func() error {
			if logFile != nil {
				logFile.Close()
			}
			return cmd.Process.Release()
		},
	}

	return proc, nil
}

// Run launches a child in the foreground and waits for it. Cancelling
// ctx delivers SIGINT to the child's process group; the child is killed
// if it has not exited within the grace period.
func (r *LocalRunner) Run(ctx context.Context, spec StartSpec) (int, error) {
	cmd, logFile, err := r.prepare(spec)
	if err != nil {
		return -1, err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logging.Debug("running child", "run", spec.Name, "argv", spec.Argv, "gpu", spec.GPU)

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", spec.Argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return exitCode(err)
	case <-ctx.Done():
	}

	// Interrupt the whole group and give the child time to checkpoint.
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGINT)

	grace := r.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	select {
	case err := <-done:
		return exitCode(err)
	case <-time.After(grace):
		logging.Warn("child ignored interrupt, killing", "run", spec.Name, "pid", pid)
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		err := <-done
		return exitCode(err)
	}
}

// Signal delivers sig to the child's process group.
func (r *LocalRunner) Signal(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal type %T", sig)
	}
	if err := syscall.Kill(-pid, s); err != nil {
		if stderrors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("process group %d not found: %w", pid, err)
		}
		return fmt.Errorf("failed to signal process group %d: %w", pid, err)
	}
	return nil
}

// Stop interrupts the child's process group and escalates to SIGKILL
// once grace has elapsed. A child that is already gone is not an error.
func (r *LocalRunner) Stop(ctx context.Context, pid int, grace time.Duration) error {
	if grace <= 0 {
		grace = r.Grace
	}
	if grace <= 0 {
		grace = DefaultGrace
	}

	if err := syscall.Kill(-pid, syscall.SIGINT); err != nil {
		if stderrors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to interrupt process group %d: %w", pid, err)
	}

	logging.Debug("interrupted process group", "pid", pid, "grace", grace)

	deadline := time.Now().Add(grace)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			running, err := r.IsRunning(pid)
			if err != nil {
				return err
			}
			if !running {
				return nil
			}
			if time.Now().After(deadline) {
				logging.Warn("process ignored interrupt, killing", "pid", pid)
				if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !stderrors.Is(err, syscall.ESRCH) {
					return fmt.Errorf("failed to kill process group %d: %w", pid, err)
				}
				return nil
			}
		}
	}
}

// IsRunning reports whether pid refers to a live process. A process we
// cannot signal but that exists still counts as running.
func (r *LocalRunner) IsRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, syscall.ESRCH):
		return false, nil
	case stderrors.Is(err, syscall.EPERM):
		return true, nil
	default:
		return false, err
	}
}

// exitCode maps a Wait error to the child's exit code. Children killed
// by a signal report the shell convention, 128+signal.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Ensure LocalRunner implements Runner
var _ Runner = (*LocalRunner)(nil)
