// Package gitinfo captures the state of the project checkout at launch
// time. The revision and dirty flag go into the run record so results
// can be traced back to the exact code that produced them.
package gitinfo

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/polonav/igpctl/internal/system"
)

// Info describes a git checkout.
type Info struct {
	Revision string `json:"revision"`
	Branch   string `json:"branch,omitempty"`
	Dirty    bool   `json:"dirty"`
}

// IsRepo reports whether path is a git checkout.
// .git can be a directory (normal repo) or a file (worktree).
func IsRepo(path string) bool {
	info, err := system.DefaultFS().Stat(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir() || info.Mode().IsRegular()
}

// Capture reads the checkout state of repoPath. Failures are reported
// so callers can degrade to an unattributed run instead of aborting.
func Capture(ctx context.Context, repoPath string) (*Info, error) {
	execr := system.DefaultExecutor()

	rev, err := execr.Execute(ctx, "git", "-C", repoPath, "rev-parse", "--short", "HEAD")
	if err != nil {
		return nil, err
	}

	info := &Info{Revision: strings.TrimSpace(string(rev))}

	if branch, err := execr.Execute(ctx, "git", "-C", repoPath, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		name := strings.TrimSpace(string(branch))
		if name != "HEAD" {
			info.Branch = name
		}
	}

	if status, err := execr.Execute(ctx, "git", "-C", repoPath, "status", "--porcelain"); err == nil {
		info.Dirty = len(strings.TrimSpace(string(status))) > 0
	}

	return info, nil
}
