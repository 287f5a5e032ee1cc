// Package jobs builds the snapshotter, replicator and sweeper from a
// configuration and runs them. The command line and the daemon both go
// through here so a scheduled run behaves exactly like a cron one.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/raoulx24/btrsnap/internal/btrfs"
	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/fs"
	"github.com/raoulx24/btrsnap/internal/logging"
	"github.com/raoulx24/btrsnap/internal/metrics"
	"github.com/raoulx24/btrsnap/internal/outcome"
	"github.com/raoulx24/btrsnap/internal/replicator"
	"github.com/raoulx24/btrsnap/internal/retention"
	"github.com/raoulx24/btrsnap/internal/snapshot"
	"github.com/raoulx24/btrsnap/internal/snapshotter"
	"github.com/raoulx24/btrsnap/internal/worker"
)

type Runner struct {
	runner btrfs.Runner
	fs     fs.FS
	log    zerolog.Logger
}

// New creates a Runner. A nil runner executes the real btrfs binary and a
// nil filesystem uses the OS.
func New(runner btrfs.Runner, filesystem fs.FS, log zerolog.Logger) *Runner {
	if filesystem == nil {
		filesystem = fs.New()
	}
	return &Runner{runner: runner, fs: filesystem, log: log}
}

func (r *Runner) tool(cfg *config.Config) *btrfs.Tool {
	return btrfs.NewTool(r.runner, btrfs.Options{
		Binary:          cfg.Btrfs.Binary,
		DryRun:          cfg.Btrfs.DryRun,
		TransferTimeout: cfg.Btrfs.TransferTimeout,
	}, logging.Component(r.log, "btrfs"))
}

func naming(cfg *config.Config) snapshot.Naming {
	return snapshot.Naming{GoodSuffix: cfg.GoodSuffix, Protected: cfg.Snapshot.Protected}
}

// Snapshot snapshots every configured volume.
func (r *Runner) Snapshot(ctx context.Context, cfg *config.Config) (err error) {
	defer r.finish("snapshot", time.Now(), cfg, &err)

	pairs, err := config.ResolvePairs(cfg.Snapshot.Volumes)
	if err != nil {
		return outcome.Configf("%v", err)
	}
	if len(pairs) == 0 {
		return outcome.Configf("no volumes to snapshot")
	}

	s := snapshotter.New(r.tool(cfg), r.fs, snapshotter.Options{
		Keep:           cfg.Snapshot.Keep,
		Naming:         naming(cfg),
		KeepGoing:      cfg.Snapshot.KeepGoing,
		CheckSubvolume: cfg.Snapshot.CheckSubvolume,
		Timestamp:      cfg.Snapshot.Timestamp,
	}, logging.Component(r.log, "snapshotter"))
	return s.Run(ctx, pairs)
}

// Replicate replicates every configured pair.
func (r *Runner) Replicate(ctx context.Context, cfg *config.Config) (err error) {
	defer r.finish("replicate", time.Now(), cfg, &err)

	pairs, err := config.ResolvePairs(cfg.Replicate.Pairs)
	if err != nil {
		return outcome.Configf("%v", err)
	}
	if len(pairs) == 0 {
		return outcome.Configf("no pairs to replicate")
	}

	rc := cfg.Replicate
	rep := replicator.New(r.tool(cfg), r.fs, replicator.Options{
		Naming:  naming(cfg),
		Compare: rc.Compare,
		Policy: outcome.Policy{
			AlreadyOK: rc.AlreadyOK,
			PartialOK: rc.PartialOK,
			MissingOK: rc.MissingOK,
		},
		CreateDestination: rc.CreateDestination,
		CleanIncomplete:   rc.CleanIncomplete,
		KeepGoing:         rc.KeepGoing,
	}, logging.Component(r.log, "replicator"))
	return rep.Run(ctx, pairs)
}

// Sweep sweeps every configured root.
func (r *Runner) Sweep(ctx context.Context, cfg *config.Config) (err error) {
	defer r.finish("sweep", time.Now(), cfg, &err)

	sc := cfg.Sweep
	if len(sc.Roots) == 0 {
		return outcome.Configf("no roots to sweep")
	}

	e := retention.New(r.tool(cfg).WithCommit(sc.Commit), r.fs, retention.Options{
		Naming:         naming(cfg),
		Keep:           sc.Keep,
		MinFreePercent: sc.MinFreePercent,
		TransientAge:   sc.TransientAge,
		DeleteDelay:    sc.DeleteDelay,
		StatDelay:      sc.StatDelay,
		SkipMissing:    sc.SkipMissing,
	}, logging.Component(r.log, "sweeper"))
	return e.Run(ctx, sc.Roots)
}

// Handlers maps daemon jobs to the runs above.
func (r *Runner) Handlers() map[worker.Job]worker.Handler {
	return map[worker.Job]worker.Handler{
		worker.Snapshot:  r.Snapshot,
		worker.Replicate: r.Replicate,
		worker.Sweep:     r.Sweep,
	}
}

// finish records the run and refreshes the textfile.
func (r *Runner) finish(command string, started time.Time, cfg *config.Config, err *error) {
	metrics.RecordRun(command, started, *err)
	if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
		r.log.Warn().Err(werr).Str("path", cfg.Metrics.Textfile).Msg("metrics not written")
	}
}
