// Package snapshotter creates read-only, timestamp-named snapshots of live
// subvolumes and keeps only the newest ones per destination directory.
package snapshotter

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/raoulx24/btrsnap/internal/btrfs"
	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/fs"
	"github.com/raoulx24/btrsnap/internal/metrics"
	"github.com/raoulx24/btrsnap/internal/outcome"
	"github.com/raoulx24/btrsnap/internal/snapshot"
)

// Volumes is the part of btrfs.Tool the snapshotter needs.
type Volumes interface {
	Snapshot(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, paths ...string) error
}

type Options struct {
	// Keep is the default number of snapshots retained per destination.
	// Zero or negative disables pruning.
	Keep   int
	Naming snapshot.Naming
	// KeepGoing continues with the remaining pairs after a failure.
	KeepGoing bool
	// CheckSubvolume refuses sources that are not btrfs subvolumes.
	CheckSubvolume bool
	// Timestamp overrides the name of the snapshots created by a run.
	Timestamp string
}

type Snapshotter struct {
	vol  Volumes
	fs   fs.FS
	opts Options
	log  zerolog.Logger

	now         func() time.Time
	isSubvolume func(path string) (bool, error)
}

func New(vol Volumes, filesystem fs.FS, opts Options, log zerolog.Logger) *Snapshotter {
	if opts.Naming.GoodSuffix == "" && opts.Naming.Protected == "" {
		opts.Naming = snapshot.DefaultNaming()
	}
	return &Snapshotter{
		vol:         vol,
		fs:          filesystem,
		opts:        opts,
		log:         log,
		now:         time.Now,
		isSubvolume: btrfs.IsSubvolume,
	}
}

// Run snapshots every pair under one shared timestamp. Failures are
// collected; the returned error carries the exit status of the run.
func (s *Snapshotter) Run(ctx context.Context, pairs []config.Pair) error {
	stamp := s.opts.Timestamp
	if stamp == "" {
		stamp = snapshot.NewTimestamp(s.now())
	}
	s.log.Info().Str("timestamp", stamp).Int("pairs", len(pairs)).Msg("snapshot run")

	report := outcome.NewReport(outcome.Policy{})
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			report.Add(p.Name, err)
			break
		}
		err := s.Snapshot(ctx, p, stamp)
		report.Add(p.Name, err)
		if err != nil {
			s.log.Error().Str("pair", p.Name).Err(err).Msg("snapshot failed")
			if !s.opts.KeepGoing {
				break
			}
		}
	}
	return report.Err()
}

// Snapshot creates Destination/stamp from Source and prunes the destination
// down to the pair's keep count. Pruning is skipped when the snapshot fails.
func (s *Snapshotter) Snapshot(ctx context.Context, pair config.Pair, stamp string) error {
	log := s.log.With().Str("pair", pair.Name).Logger()

	if _, err := s.fs.Stat(pair.Source); err != nil {
		return outcome.New(outcome.MissingSource, "snapshot", pair.Source, err)
	}
	if s.opts.CheckSubvolume {
		ok, err := s.isSubvolume(pair.Source)
		if err != nil {
			return outcome.New(outcome.Internal, "check subvolume", pair.Source, err)
		}
		if !ok {
			return outcome.New(outcome.ConfigError, "check subvolume", pair.Source,
				fmt.Errorf("not a btrfs subvolume"))
		}
	}

	dst := filepath.Join(pair.Destination, stamp)
	if err := s.vol.Snapshot(ctx, pair.Source, dst); err != nil {
		return outcome.New(outcome.ExternalToolFailure, "snapshot", pair.Source, err)
	}
	metrics.SnapshotsCreated.WithLabelValues(pair.Name).Inc()
	log.Info().Str("snapshot", dst).Msg("snapshot created")

	keep := pair.KeepOr(s.opts.Keep)
	if keep <= 0 {
		return nil
	}
	_, err := s.Prune(ctx, pair.Destination, keep)
	return err
}

// Prune deletes all but the newest keep unprotected entries of dir and
// returns the deleted paths, oldest first.
func (s *Snapshotter) Prune(ctx context.Context, dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	names, err := s.fs.ReadDirNames(dir)
	if err != nil {
		return nil, outcome.New(outcome.MissingDestination, "prune", dir, err)
	}

	var candidates []snapshot.Snapshot
	for _, name := range names {
		if s.opts.Naming.IsProtected(name) {
			continue
		}
		candidates = append(candidates, s.opts.Naming.Parse(dir, name))
	}

	excess := snapshot.Excess(candidates, keep)
	if len(excess) == 0 {
		return nil, nil
	}
	paths := make([]string, 0, len(excess))
	for _, snap := range excess {
		paths = append(paths, snap.Path())
	}

	s.log.Info().Str("dir", dir).Int("keep", keep).Strs("delete", paths).Msg("pruning")
	if err := s.vol.Delete(ctx, paths...); err != nil {
		return nil, outcome.New(outcome.ExternalToolFailure, "prune", dir, err)
	}
	metrics.RecordDeleted("prune", len(paths))
	return paths, nil
}
