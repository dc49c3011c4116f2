// Package sweep expands a manifest's sweep axes into run variants and
// supervises their concurrent execution across the GPU pool.
package sweep

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/gpu"
	"github.com/polonav/igpctl/internal/launcher"
	"github.com/polonav/igpctl/internal/logging"
	"github.com/polonav/igpctl/internal/overrides"
)

// Variant is one point of the sweep grid.
type Variant struct {
	// Name is the run name, derived from the manifest name and the axis
	// values in axis order.
	Name string

	// Index is the variant's position in the expansion.
	Index int

	// Pairs holds the axis assignments, one per sweep axis.
	Pairs []overrides.Pair
}

// Overrides builds the variant's full override set: the shared base
// pairs followed by the axis assignments, so the axis values always win.
func (v Variant) Overrides(base *overrides.Set) *overrides.Set {
	set := overrides.NewSet()
	set.Merge(base)
	for _, p := range v.Pairs {
		set.Add(p)
	}
	return set
}

// Expand computes the cartesian product of the manifest's sweep axes.
// Variant order is deterministic: the last axis varies fastest.
func Expand(m *config.Manifest) ([]Variant, error) {
	if len(m.Sweep) == 0 {
		return nil, errors.ValidationError(fmt.Sprintf("manifest %s has no sweep axes", m.Name))
	}

	total := 1
	for _, axis := range m.Sweep {
		if len(axis.Values) == 0 {
			return nil, errors.ValidationError(fmt.Sprintf("sweep axis %q has no values", axis.Key))
		}
		total *= len(axis.Values)
	}

	variants := make([]Variant, 0, total)
	indices := make([]int, len(m.Sweep))
	for i := 0; i < total; i++ {
		pairs := make([]overrides.Pair, len(m.Sweep))
		for a, axis := range m.Sweep {
			pair, err := overrides.NewPair(axis.Key, axis.Values[indices[a]])
			if err != nil {
				return nil, errors.ValidationError(fmt.Sprintf("sweep axis %q: %v", axis.Key, err))
			}
			pairs[a] = pair
		}

		name := variantName(m.Name, pairs)
		if err := config.ValidateRunName(name); err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("variant name %q: %v", name, err))
		}
		variants = append(variants, Variant{Name: name, Index: i, Pairs: pairs})

		for a := len(indices) - 1; a >= 0; a-- {
			indices[a]++
			if indices[a] < len(m.Sweep[a].Values) {
				break
			}
			indices[a] = 0
		}
	}
	return variants, nil
}

// variantName joins the manifest name with sanitized axis value tokens.
func variantName(base string, pairs []overrides.Pair) string {
	parts := make([]string, 0, len(pairs)+1)
	parts = append(parts, base)
	for _, p := range pairs {
		parts = append(parts, sanitizeToken(p.Raw))
	}
	return strings.Join(parts, "-")
}

// sanitizeToken maps a literal value into the run-name alphabet.
func sanitizeToken(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Options tunes a sweep execution.
type Options struct {
	// Extra is appended to every variant's override set between the
	// manifest options and the axis assignments.
	Extra *overrides.Set

	// Parallel caps concurrent variants. Zero means one per free GPU.
	Parallel int

	// SkipExisting resumes a sweep: variants with a finished run of the
	// same name are skipped.
	SkipExisting bool
}

// Outcome reports one variant's fate.
type Outcome struct {
	Variant  Variant
	Status   string
	ExitCode int
	Skipped  bool
	Err      error
}

// Summary aggregates a sweep's outcomes.
type Summary struct {
	Outcomes []Outcome

	Finished int
	Failed   int
	Stopped  int
	Skipped  int
	Canceled int
	Errored  int
}

// Failures counts the outcomes that should make the sweep exit nonzero.
func (s *Summary) Failures() int {
	return s.Failed + s.Errored
}

// Sweeper runs sweeps through a launcher.
type Sweeper struct {
	paths    *config.Paths
	cfg      *config.ToolConfig
	launcher *launcher.Launcher
}

// New creates a Sweeper over explicit dependencies.
func New(paths *config.Paths, cfg *config.ToolConfig, l *launcher.Launcher) *Sweeper {
	return &Sweeper{paths: paths, cfg: cfg, launcher: l}
}

// Run expands the manifest and executes every variant, at most one per
// free GPU at a time. It blocks until all variants have finished,
// failed, or been stopped by context cancellation; the summary reflects
// every variant.
func (s *Sweeper) Run(ctx context.Context, m *config.Manifest, opts Options) (*Summary, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.ConfigError("invalid manifest", err)
	}

	variants, err := Expand(m)
	if err != nil {
		return nil, err
	}

	base, err := launcher.ComposeOptions(s.cfg, m, opts.Extra)
	if err != nil {
		return nil, err
	}

	runs, err := config.ListRuns(s.paths.RunsDir)
	if err != nil {
		return nil, errors.ConfigError("failed to list runs", err)
	}
	free := gpu.Free(s.cfg.GPUs, runs)
	if len(free) == 0 {
		return nil, errors.GPUAllocationFailed("no free GPUs for sweep (%d configured)", len(s.cfg.GPUs))
	}
	if opts.Parallel > 0 && opts.Parallel < len(free) {
		free = free[:opts.Parallel]
	}

	logging.Info("starting sweep",
		"manifest", m.Name, "variants", len(variants), "slots", len(free))

	// Free devices double as concurrency slots: a variant holds one
	// device from launch to exit.
	slots := make(chan int, len(free))
	for _, d := range free {
		slots <- d
	}

	outcomes := make([]Outcome, len(variants))
	var eg errgroup.Group
	for i, v := range variants {
		eg.Go(func() error {
			outcomes[i] = s.runVariant(ctx, m, v, base, slots, opts)
			return nil
		})
	}
	// Wait barrier: every variant reports before the sweep returns.
	_ = eg.Wait()

	summary := &Summary{Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case stderrors.Is(o.Err, context.Canceled):
			summary.Canceled++
		case o.Err != nil:
			summary.Errored++
		case o.Skipped:
			summary.Skipped++
		case o.Status == config.StatusFinished:
			summary.Finished++
		case o.Status == config.StatusFailed:
			summary.Failed++
		case o.Status == config.StatusStopped:
			summary.Stopped++
		}
	}
	return summary, nil
}

func (s *Sweeper) runVariant(ctx context.Context, m *config.Manifest, v Variant, base *overrides.Set, slots chan int, opts Options) Outcome {
	outcome := Outcome{Variant: v}

	var device int
	select {
	case device = <-slots:
	case <-ctx.Done():
		outcome.Err = ctx.Err()
		return outcome
	}
	defer func() { slots <- device }()

	if ctx.Err() != nil {
		outcome.Err = ctx.Err()
		return outcome
	}

	logging.Info("launching variant", "run", v.Name, "gpu", device)

	result, err := s.launcher.Launch(ctx, launcher.LaunchOptions{
		Name:         v.Name,
		Experiment:   v.Name,
		Program:      m.Program,
		Manifest:     m.Name,
		Overrides:    v.Overrides(base),
		Env:          m.Env,
		Eval:         m.Eval,
		GPU:          device,
		Quiet:        true,
		SkipExisting: opts.SkipExisting,
	})
	if err != nil {
		logging.Warn("variant launch failed", "run", v.Name, "error", err)
		outcome.Err = err
		return outcome
	}

	outcome.ExitCode = result.ExitCode
	outcome.Skipped = result.Skipped
	if result.Record != nil {
		outcome.Status = result.Record.Status
	}

	logging.Info("variant done",
		"run", v.Name, "status", outcome.Status, "exit", outcome.ExitCode)
	return outcome
}
