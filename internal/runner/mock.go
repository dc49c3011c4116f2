package runner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// MockProc tracks the state of a mock child process.
type MockProc struct {
	PID   int
	Spec  StartSpec
	Alive bool
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []any
}

// MockRunner is a mock implementation of Runner for testing
type MockRunner struct {
	mu sync.RWMutex

	// Procs tracks mock children by PID
	Procs map[int]*MockProc

	// ExitCodes maps run names to the exit code Run and Wait report
	ExitCodes map[string]int

	// Errors allows injecting errors for specific operations
	Errors map[string]error

	// CallLog records all method calls for verification
	CallLog []MockCall

	nextPID int
}

// NewMockRunner creates a new mock runner
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Procs:     make(map[int]*MockProc),
		ExitCodes: make(map[string]int),
		Errors:    make(map[string]error),
		CallLog:   make([]MockCall, 0),
		nextPID:   4000,
	}
}

func (m *MockRunner) record(method string, args ...any) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockRunner) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// SetExitCode sets the exit code reported for a run name
func (m *MockRunner) SetExitCode(name string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExitCodes[name] = code
}

// AddProc registers a fake child, returning its PID
func (m *MockRunner) AddProc(name string, alive bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPID++
	pid := m.nextPID
	m.Procs[pid] = &MockProc{PID: pid, Spec: StartSpec{Name: name}, Alive: alive}
	return pid
}

// GetCallsFor returns all calls for a specific method
func (m *MockRunner) GetCallsFor(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Reset clears all state
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Procs = make(map[int]*MockProc)
	m.ExitCodes = make(map[string]int)
	m.Errors = make(map[string]error)
	m.CallLog = make([]MockCall, 0)
	m.nextPID = 4000
}

// Name returns the runner identifier
func (m *MockRunner) Name() string {
	return "mock"
}

// Start registers a mock child and returns a handle to it
func (m *MockRunner) Start(ctx context.Context, spec StartSpec) (*Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Start", spec)

	if err, ok := m.Errors["Start"]; ok {
		return nil, err
	}

	m.nextPID++
	pid := m.nextPID
	m.Procs[pid] = &MockProc{PID: pid, Spec: spec, Alive: true}

	return &Process{
		PID:       pid,
		StartedAt: time.Now(),
		wait: func() (int, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if p, ok := m.Procs[pid]; ok {
				p.Alive = false
			}
			return m.ExitCodes[spec.Name], nil
		},
		release: func() error { return nil },
	}, nil
}

// Run pretends to run a child in the foreground
func (m *MockRunner) Run(ctx context.Context, spec StartSpec) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Run", spec)

	if err, ok := m.Errors["Run"]; ok {
		return -1, err
	}

	return m.ExitCodes[spec.Name], nil
}

// Signal records the signal without delivering anything
func (m *MockRunner) Signal(pid int, sig os.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Signal", pid, sig)

	if err, ok := m.Errors["Signal"]; ok {
		return err
	}

	if _, ok := m.Procs[pid]; !ok {
		return fmt.Errorf("process group %d not found", pid)
	}
	return nil
}

// Stop marks the mock child as no longer alive
func (m *MockRunner) Stop(ctx context.Context, pid int, grace time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Stop", pid, grace)

	if err, ok := m.Errors["Stop"]; ok {
		return err
	}

	if p, ok := m.Procs[pid]; ok {
		p.Alive = false
	}
	return nil
}

// IsRunning reports whether the mock child is alive
func (m *MockRunner) IsRunning(pid int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.record("IsRunning", pid)

	if err, ok := m.Errors["IsRunning"]; ok {
		return false, err
	}

	if p, ok := m.Procs[pid]; ok {
		return p.Alive, nil
	}
	return false, nil
}

// Ensure MockRunner implements Runner
var _ Runner = (*MockRunner)(nil)
