package runner

import "sync"

var (
	globalRunner Runner
	globalMu     sync.RWMutex
)

// Global returns the global runner instance, creating a local runner on
// first use.
func Global() Runner {
	globalMu.RLock()
	if globalRunner != nil {
		defer globalMu.RUnlock()
		return globalRunner
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRunner == nil {
		globalRunner = NewLocalRunner()
	}
	return globalRunner
}

// SetGlobal sets the global runner instance.
// Call early in main() or in tests to override the local runner.
func SetGlobal(r Runner) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRunner = r
}
