// Package health checks the state of launched runs.
//
// Health checks verify that a run's record matches reality: the child
// process is alive, its log is still being written, and expected
// artifacts are in place.
//
// # Health Status
//
// Run health is represented by Status:
//
//	StatusRunning  - record active, process alive, log fresh
//	StatusStale    - record claims a live process that is gone or silent
//	StatusFinished - child exited with code 0
//	StatusFailed   - child exited nonzero
//	StatusStopped  - child was stopped on request
//	StatusPending  - record created, child not started yet
//
// # Check Functions
//
// Individual facets:
//
//	checker.Alive(record)     // process liveness (signal 0)
//	checker.LogAge(record)    // time since the child last logged
//
// Combined checks:
//
//	result := checker.Check(record)
//	// result.ProcessAlive, .LogFresh, .HasResults, .Uptime
//
//	status := checker.Summary(record)
//	// Returns StatusRunning, StatusStale, etc.
package health
