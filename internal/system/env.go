package system

import (
	"os"
	"strings"
)

// sensitiveMarkers flags environment variables that must not leak into
// exec'd helper processes.
var sensitiveMarkers = []string{
	"TOKEN",
	"SECRET",
	"PASSWORD",
	"API_KEY",
	"CREDENTIALS",
}

// SafeEnviron returns the current environment with credential-bearing
// variables removed. Used when replacing the process with a pager or
// tail helper, where the full environment is unnecessary.
func SafeEnviron() []string {
	env := os.Environ()
	safe := make([]string, 0, len(env))

	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		upper := strings.ToUpper(name)

		sensitive := false
		for _, marker := range sensitiveMarkers {
			if strings.Contains(upper, marker) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			safe = append(safe, kv)
		}
	}

	return safe
}
