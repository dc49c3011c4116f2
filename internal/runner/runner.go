// Package runner defines the process runner interface for igpctl.
// This abstraction covers spawning, signalling and reaping the Python
// training and evaluation children, and enables comprehensive testing
// through mocking.
package runner

import (
	"context"
	"io"
	"os"
	"time"
)

// StartSpec describes a child process to launch.
type StartSpec struct {
	Name    string    // run name, used for logging and bookkeeping
	Argv    []string  // full command line, argv[0] is the interpreter
	Dir     string    // working directory, usually the project root
	Env     []string  // extra KEY=VALUE entries appended to the inherited environment
	GPU     int       // CUDA device id, -1 leaves CUDA_VISIBLE_DEVICES untouched
	LogPath string    // combined stdout/stderr capture, empty disables capture
	Tee     bool      // also stream child output to our stdout/stderr
	Stdin   io.Reader // connected for interactive children, nil otherwise
}

// Process is a handle to a started child.
type Process struct {
	PID       int
	StartedAt time.Time

	wait    func() (int, error)
	release func() error
}

// Wait blocks until the child exits and returns its exit code.
// Children killed by a signal report the shell convention, 128+signal.
func (p *Process) Wait() (int, error) {
	if p.wait == nil {
		return 0, nil
	}
	return p.wait()
}

// Release detaches from the child without waiting. The child keeps
// running after we exit; its log file stays open on the child side.
func (p *Process) Release() error {
	if p.release == nil {
		return nil
	}
	return p.release()
}

// Runner is the interface process backends implement.
// All methods must be safe for concurrent use.
type Runner interface {
	// Name returns the runner identifier (e.g. "local")
	Name() string

	// Start launches a child in its own process group and returns
	// without waiting. The caller either Waits or Releases the handle.
	Start(ctx context.Context, spec StartSpec) (*Process, error)

	// Run launches a child in the foreground and waits for it,
	// returning its exit code. Cancelling ctx interrupts the child.
	Run(ctx context.Context, spec StartSpec) (int, error)

	// Signal delivers sig to the child's process group.
	Signal(pid int, sig os.Signal) error

	// Stop interrupts the child's process group, escalating to SIGKILL
	// once grace has elapsed.
	Stop(ctx context.Context, pid int, grace time.Duration) error

	// IsRunning reports whether pid refers to a live process.
	IsRunning(pid int) (bool, error)
}
