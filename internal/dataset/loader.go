package dataset

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/logging"
)

// Options configures a Loader.
type Options struct {
	DataDir   string
	Split     string
	BatchSize int // episodes per batch, default 1
	Shuffle   bool
	Seed      int64
	Workers   int // decode goroutines, default 1
}

// Batch is a group of decoded episodes.
type Batch struct {
	Episodes []Episode
}

// Loader streams decoded episode batches from a split. Decoding runs
// on Workers goroutines ahead of the consumer; batch order follows the
// (optionally shuffled) episode order.
type Loader struct {
	opts Options
	refs []EpisodeRef
}

// NewLoader scans the split and fixes the episode order.
func NewLoader(opts Options) (*Loader, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	refs, err := Scan(opts.DataDir, opts.Split)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, errors.DataError(
			fmt.Sprintf("split %q has no episodes under %s", opts.Split, opts.DataDir), nil)
	}

	if opts.Shuffle {
		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(len(refs), func(i, j int) {
			refs[i], refs[j] = refs[j], refs[i]
		})
	}

	logging.Debug("dataset loader ready",
		"split", opts.Split, "episodes", len(refs), "workers", opts.Workers)
	return &Loader{opts: opts, refs: refs}, nil
}

// Episodes is the number of episodes in the split.
func (l *Loader) Episodes() int {
	return len(l.refs)
}

// Batches is the number of batches one pass will deliver.
func (l *Loader) Batches() int {
	return (len(l.refs) + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Order returns the episode IDs in delivery order.
func (l *Loader) Order() []string {
	ids := make([]string, len(l.refs))
	for i, ref := range l.refs {
		ids[i] = ref.ID
	}
	return ids
}

// Load starts one pass over the split. The batch channel closes when
// the pass finishes or aborts; the returned wait function reports the
// first decode error, or the context error on cancellation. The
// caller must drain the channel.
func (l *Loader) Load(ctx context.Context) (<-chan Batch, func() error) {
	out := make(chan Batch)
	eg, egCtx := errgroup.WithContext(ctx)

	type result struct {
		episode Episode
		err     error
	}

	// Each episode gets a single-slot promise; promises leave in
	// order, so decode parallelism never reorders delivery.
	promises := make(chan chan result, l.opts.Workers)

	eg.Go(func() error {
		defer close(promises)
		var workers errgroup.Group
		workers.SetLimit(l.opts.Workers)
		defer workers.Wait()
		for _, ref := range l.refs {
			p := make(chan result, 1)
			select {
			case promises <- p:
			case <-egCtx.Done():
				return egCtx.Err()
			}
			workers.Go(func() error {
				frames, err := ReadEpisode(ref.Path)
				p <- result{episode: Episode{ID: ref.ID, Frames: frames}, err: err}
				return nil
			})
		}
		return nil
	})

	eg.Go(func() error {
		var batch Batch
		flush := func() error {
			if len(batch.Episodes) == 0 {
				return nil
			}
			select {
			case out <- batch:
				batch = Batch{}
				return nil
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}

		for p := range promises {
			res := <-p
			if res.err != nil {
				return res.err
			}
			batch.Episodes = append(batch.Episodes, res.episode)
			if len(batch.Episodes) == l.opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	go func() {
		eg.Wait()
		close(out)
	}()
	return out, eg.Wait
}
