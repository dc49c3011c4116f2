package gpu

import (
	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
)

// InUse reports which devices are currently held by active runs.
func InUse(runs []*config.RunRecord) map[int]bool {
	used := make(map[int]bool)
	for _, r := range runs {
		if r.Active() && r.GPU >= 0 {
			used[r.GPU] = true
		}
	}
	return used
}

// Free returns the configured devices not held by any active run, in
// configuration order.
func Free(devices []int, runs []*config.RunRecord) []int {
	used := InUse(runs)
	free := make([]int, 0, len(devices))
	for _, id := range devices {
		if !used[id] {
			free = append(free, id)
		}
	}
	return free
}

// Allocate picks the first configured device not held by an active run.
func Allocate(devices []int, runs []*config.RunRecord) (int, error) {
	if len(devices) == 0 {
		return -1, errors.GPUAllocationFailed("no GPUs configured")
	}
	used := InUse(runs)
	for _, id := range devices {
		if !used[id] {
			return id, nil
		}
	}
	return -1, errors.GPUAllocationFailed("all configured GPUs are busy")
}
