// Package retention sweeps destination trees: it removes transient snapshots
// older than an age limit, then deletes the oldest good snapshots one at a
// time while the filesystem is short of free space.
package retention

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/raoulx24/btrsnap/internal/fs"
	"github.com/raoulx24/btrsnap/internal/metrics"
	"github.com/raoulx24/btrsnap/internal/outcome"
	"github.com/raoulx24/btrsnap/internal/snapshot"
)

// Deleter is the part of btrfs.Tool the sweeper needs.
type Deleter interface {
	Delete(ctx context.Context, paths ...string) error
	DryRun() bool
}

type Options struct {
	Naming snapshot.Naming
	// Keep is the number of newest good snapshots never deleted per
	// subdirectory.
	Keep           int
	MinFreePercent float64
	// TransientAge is the age past which a snapshot without the good
	// suffix is deleted.
	TransientAge time.Duration
	DeleteDelay  time.Duration // pause after each deletion
	StatDelay    time.Duration // pause between the two free-space readings
	SkipMissing  bool
}

// Result describes the sweep of one root.
type Result struct {
	Root        string
	State       State
	Transients  []string // transient snapshots deleted
	Deleted     []string // good snapshots deleted for space
	FreePercent float64  // last reading
}

type Engine struct {
	del  Deleter
	fs   fs.FS
	opts Options
	log  zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(del Deleter, filesystem fs.FS, opts Options, log zerolog.Logger) *Engine {
	if opts.Naming.GoodSuffix == "" {
		opts.Naming = snapshot.DefaultNaming()
	}
	return &Engine{
		del:   del,
		fs:    filesystem,
		opts:  opts,
		log:   log,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run sweeps every root. A root that aborts does not stop the others; the
// returned error aggregates all failures.
func (e *Engine) Run(ctx context.Context, roots []string) error {
	report := outcome.NewReport(outcome.Policy{})
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			report.Add(root, err)
			break
		}
		res, err := e.Sweep(ctx, root)
		report.Add(root, err)

		log := e.log.With().Str("root", root).Str("state", res.State.String()).Logger()
		if err != nil {
			log.Error().Err(err).Msg("sweep aborted")
			continue
		}
		log.Info().
			Int("transients", len(res.Transients)).
			Int("deleted", len(res.Deleted)).
			Float64("free_percent", res.FreePercent).
			Msg("sweep done")
	}
	return report.Err()
}

// Sweep runs the state machine on one root.
func (e *Engine) Sweep(ctx context.Context, root string) (Result, error) {
	res := Result{Root: root, State: ScanningTransients}
	log := e.log.With().Str("root", root).Logger()

	dirs, err := e.scanRoot(root)
	if err != nil {
		if e.opts.SkipMissing {
			log.Info().Err(err).Msg("skipping missing root")
			res.State = Done
			return res, nil
		}
		res.State = AbortedMissing
		return res, outcome.New(outcome.MissingDestination, "sweep", root, err)
	}

	transients := e.expiredTransients(log, dirs)
	if len(transients) > 0 {
		res.State = DeletingTransients
		for _, s := range transients {
			log.Info().Str("snapshot", s.Path()).Dur("age", s.Age(e.now())).Msg("deleting transient")
			if err := e.del.Delete(ctx, s.Path()); err != nil {
				return res, outcome.New(outcome.ExternalToolFailure, "delete transient", s.Path(), err)
			}
			res.Transients = append(res.Transients, s.Path())
		}
		metrics.RecordDeleted("transient", len(res.Transients))
		if err := e.pause(ctx, e.opts.DeleteDelay*time.Duration(len(res.Transients))); err != nil {
			return res, err
		}
	}

	res.State = CheckingSpace
	usage, err := e.fs.Usage(root)
	if err != nil {
		return res, outcome.New(outcome.Internal, "statfs", root, err)
	}
	res.FreePercent = e.record(root, usage)
	if res.FreePercent >= e.opts.MinFreePercent {
		log.Debug().Float64("free_percent", res.FreePercent).Msg("enough free space")
		res.State = Done
		return res, nil
	}

	res.State = ScanningCandidates
	if len(res.Transients) > 0 {
		// transient deletions changed the listings
		if dirs, err = e.scanRoot(root); err != nil {
			return res, outcome.New(outcome.MissingDestination, "sweep", root, err)
		}
	}
	candidates := e.candidates(dirs)
	log.Debug().Int("candidates", len(candidates)).Float64("free_percent", res.FreePercent).Msg("space limited")

	res.State = DeletingOldest
	satisfied := false
	for _, s := range candidates {
		free, err := e.stableFree(ctx, root)
		if err != nil {
			if outcome.KindOf(err) == outcome.SpaceAnomaly {
				res.State = AbortedAnomaly
			}
			return res, err
		}
		res.FreePercent = free
		if free >= e.opts.MinFreePercent {
			satisfied = true
			break
		}

		log.Info().Str("snapshot", s.Path()).Float64("free_percent", free).Msg("deleting for space")
		if err := e.del.Delete(ctx, s.Path()); err != nil {
			return res, outcome.New(outcome.ExternalToolFailure, "delete", s.Path(), err)
		}
		res.Deleted = append(res.Deleted, s.Path())
		metrics.RecordDeleted("space", 1)
		if err := e.pause(ctx, e.opts.DeleteDelay); err != nil {
			return res, err
		}
	}
	if !satisfied {
		log.Warn().Float64("free_percent", res.FreePercent).Msg("no more snapshots to delete")
	}

	res.State = Done
	return res, nil
}

// scanRoot lists the snapshots of every subdirectory of root, keyed by
// subdirectory path.
func (e *Engine) scanRoot(root string) (map[string][]snapshot.Snapshot, error) {
	names, err := e.fs.ReadDirNames(root)
	if err != nil {
		return nil, err
	}
	dirs := make(map[string][]snapshot.Snapshot, len(names))
	for _, name := range names {
		dir := filepath.Join(root, name)
		st, err := e.fs.Stat(dir)
		if err != nil || !st.IsDir {
			continue
		}
		entries, err := e.fs.ReadDirNames(dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		dirs[dir] = e.opts.Naming.ParseAll(dir, entries)
	}
	return dirs, nil
}

// expiredTransients returns the snapshots without the good suffix whose
// age exceeds the limit, oldest first. Names that are not timestamps are
// left alone.
func (e *Engine) expiredTransients(log zerolog.Logger, dirs map[string][]snapshot.Snapshot) []snapshot.Snapshot {
	now := e.now()
	var out []snapshot.Snapshot
	for _, snaps := range dirs {
		for _, s := range snaps {
			if s.Good {
				continue
			}
			if !s.Dated() {
				log.Warn().Str("snapshot", s.Path()).Msg("transient name is not a timestamp, ignoring")
				continue
			}
			if s.Age(now) > e.opts.TransientAge {
				out = append(out, s)
			} else {
				log.Debug().Str("snapshot", s.Path()).Dur("age", s.Age(now)).Msg("keeping transient")
			}
		}
	}
	snapshot.Sort(out)
	return out
}

// candidates returns the good snapshots of all subdirectories except the
// newest Keep of each, oldest first across the whole root.
func (e *Engine) candidates(dirs map[string][]snapshot.Snapshot) []snapshot.Snapshot {
	var out []snapshot.Snapshot
	for _, snaps := range dirs {
		good := snapshot.Filter(snaps, func(s snapshot.Snapshot) bool { return s.Good })
		out = append(out, snapshot.Excess(good, e.opts.Keep)...)
	}
	snapshot.Sort(out)
	return out
}

// stableFree takes two readings StatDelay apart. Differing readings mean
// something else is writing to the filesystem, and deleting on that basis
// is unsafe.
func (e *Engine) stableFree(ctx context.Context, root string) (float64, error) {
	first, err := e.fs.Usage(root)
	if err != nil {
		return 0, outcome.New(outcome.Internal, "statfs", root, err)
	}
	if err := e.pause(ctx, e.opts.StatDelay); err != nil {
		return 0, err
	}
	second, err := e.fs.Usage(root)
	if err != nil {
		return 0, outcome.New(outcome.Internal, "statfs", root, err)
	}
	if first.Free != second.Free {
		return 0, outcome.New(outcome.SpaceAnomaly, "statfs", root,
			fmt.Errorf("free space changed from %d to %d", first.Free, second.Free))
	}
	return e.record(root, second), nil
}

func (e *Engine) record(root string, u fs.Usage) float64 {
	free := u.FreePercent()
	metrics.FreePercent.WithLabelValues(root).Set(free)
	return free
}

// pause sleeps unless running dry.
func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	if e.del.DryRun() {
		return nil
	}
	return e.sleep(ctx, d)
}
