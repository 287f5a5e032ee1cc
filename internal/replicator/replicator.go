// Package replicator copies the newest snapshot of each source directory to
// its destination with btrfs send|receive, offering every snapshot already
// present on both sides as an incremental base.
//
// A received snapshot only becomes usable once it carries the good suffix.
// The rename happens last, after the optional tree comparison, so a crash
// anywhere before leaves a transient entry that the retention sweeper will
// eventually remove.
package replicator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/fs"
	"github.com/raoulx24/btrsnap/internal/metrics"
	"github.com/raoulx24/btrsnap/internal/outcome"
	"github.com/raoulx24/btrsnap/internal/snapshot"
	"github.com/raoulx24/btrsnap/internal/verify"
)

// Transfer is the part of btrfs.Tool the replicator needs.
type Transfer interface {
	Create(ctx context.Context, path string) error
	Delete(ctx context.Context, paths ...string) error
	SendReceive(ctx context.Context, target string, bases []string, dstDir string) error
	DryRun() bool
}

type Options struct {
	Naming snapshot.Naming
	// Compare verifies the received tree against the source before marking
	// it good.
	Compare bool
	// Policy decides whether already replicated, missing destination and
	// missing source count as success.
	Policy            outcome.Policy
	CreateDestination bool
	CleanIncomplete   bool
	KeepGoing         bool
}

// Result describes one replicated pair.
type Result struct {
	Target snapshot.Snapshot
	Bases  []string // full paths of the source snapshots offered as bases
	Good   string   // path of the received snapshot once marked good
}

type Replicator struct {
	tr   Transfer
	fs   fs.FS
	opts Options
	log  zerolog.Logger

	compare func(left, right string) ([]verify.Discrepancy, error)
}

func New(tr Transfer, filesystem fs.FS, opts Options, log zerolog.Logger) *Replicator {
	if opts.Naming.GoodSuffix == "" {
		opts.Naming = snapshot.DefaultNaming()
	}
	return &Replicator{
		tr:      tr,
		fs:      filesystem,
		opts:    opts,
		log:     log,
		compare: verify.Compare,
	}
}

// Run replicates every pair in order and returns the aggregated outcome.
func (r *Replicator) Run(ctx context.Context, pairs []config.Pair) error {
	report := outcome.NewReport(r.opts.Policy)
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			report.Add(p.Name, err)
			break
		}
		res, err := r.Replicate(ctx, p)
		kind := report.Add(p.Name, err)
		metrics.Replications.WithLabelValues(p.Name, kind.String()).Inc()

		log := r.log.With().Str("pair", p.Name).Str("outcome", kind.String()).Logger()
		switch {
		case err == nil:
			log.Info().Str("snapshot", res.Good).Int("bases", len(res.Bases)).Msg("replicated")
		case r.opts.Policy.Tolerated(kind):
			log.Info().Err(err).Msg("nothing replicated")
		case !aborts(kind):
			log.Warn().Err(err).Msg("nothing replicated")
		default:
			log.Error().Err(err).Msg("replication failed")
			if !r.opts.KeepGoing {
				return r.finish(report)
			}
		}
	}
	return r.finish(report)
}

func (r *Replicator) finish(report *outcome.Report) error {
	r.log.Info().
		Int("pairs", len(report.Entries())).
		Int("replicated", report.Count(outcome.OK)).
		Int("up_to_date", report.Count(outcome.AlreadyReplicated)).
		Int("failed", len(report.Failed())).
		Msg("replication run finished")
	return report.Err()
}

// aborts reports whether a failure of kind stops a run without KeepGoing.
// A pair that is up to date or whose source or destination is absent still
// counts in the report but never holds back the remaining pairs.
func aborts(kind outcome.Kind) bool {
	switch kind {
	case outcome.AlreadyReplicated, outcome.MissingSource, outcome.MissingDestination:
		return false
	default:
		return true
	}
}

// Replicate brings one destination up to date with the newest snapshot of
// its source.
func (r *Replicator) Replicate(ctx context.Context, pair config.Pair) (Result, error) {
	log := r.log.With().Str("pair", pair.Name).Logger()

	target, sourceNames, err := r.selectTarget(pair.Source)
	if err != nil {
		return Result{}, err
	}
	res := Result{Target: target}
	log.Debug().Str("target", target.Path()).Msg("target selected")

	good, err := r.scanDestination(ctx, pair.Destination)
	if err != nil {
		return res, err
	}

	for _, name := range good {
		if name == target.Name {
			return res, outcome.New(outcome.AlreadyReplicated, "replicate", target.Path(), nil)
		}
	}

	for _, b := range snapshot.CommonBases(sourceNames, good) {
		res.Bases = append(res.Bases, filepath.Join(pair.Source, b))
	}
	metrics.ReplicationBases.WithLabelValues(pair.Name).Set(float64(len(res.Bases)))

	if err := r.tr.SendReceive(ctx, target.Path(), res.Bases, pair.Destination); err != nil {
		return res, outcome.New(outcome.ExternalToolFailure, "send/receive", target.Path(), err)
	}

	received := filepath.Join(pair.Destination, target.Name)
	if r.tr.DryRun() {
		res.Good = received + r.opts.Naming.GoodSuffix
		return res, nil
	}

	if r.opts.Compare {
		if err := r.verify(log, target.Path(), received); err != nil {
			return res, err
		}
	}

	res.Good = filepath.Join(pair.Destination, r.opts.Naming.GoodName(target.Name))
	if err := r.fs.Rename(ctx, received, res.Good); err != nil {
		return res, outcome.New(outcome.Internal, "mark good", received, err)
	}
	return res, nil
}

// selectTarget returns the newest source snapshot and the names of all
// source entries. Dated names win over hand-named ones.
func (r *Replicator) selectTarget(dir string) (snapshot.Snapshot, []string, error) {
	names, err := r.fs.ReadDirNames(dir)
	if err != nil {
		return snapshot.Snapshot{}, nil, outcome.New(outcome.MissingSource, "list source", dir, err)
	}
	if len(names) == 0 {
		return snapshot.Snapshot{}, nil, outcome.New(outcome.MissingSource, "list source", dir,
			fmt.Errorf("no snapshots"))
	}

	// source entries never carry the good suffix
	snaps := snapshot.Naming{}.ParseAll(dir, names)
	candidates := snapshot.Filter(snaps, snapshot.Snapshot.Dated)
	if len(candidates) == 0 {
		candidates = snaps
	}
	target, _ := snapshot.Latest(candidates)
	return target, names, nil
}

// scanDestination makes sure dir exists, removes incomplete transfers when
// asked to, and returns the good names with the suffix stripped.
func (r *Replicator) scanDestination(ctx context.Context, dir string) ([]string, error) {
	if _, err := r.fs.Stat(dir); err != nil {
		if !r.opts.CreateDestination {
			return nil, outcome.New(outcome.MissingDestination, "list destination", dir, err)
		}
		r.log.Info().Str("dir", dir).Msg("creating destination")
		if err := r.tr.Create(ctx, dir); err != nil {
			return nil, outcome.New(outcome.ExternalToolFailure, "create destination", dir, err)
		}
		if r.tr.DryRun() {
			return nil, nil
		}
	}

	names, err := r.fs.ReadDirNames(dir)
	if err != nil {
		return nil, outcome.New(outcome.MissingDestination, "list destination", dir, err)
	}

	var good []string
	var incomplete []string
	for _, s := range r.opts.Naming.ParseAll(dir, names) {
		if s.Good {
			good = append(good, s.Base)
		} else {
			incomplete = append(incomplete, s.Path())
		}
	}

	if len(incomplete) > 0 && r.opts.CleanIncomplete {
		r.log.Info().Strs("delete", incomplete).Msg("removing incomplete snapshots")
		if err := r.tr.Delete(ctx, incomplete...); err != nil {
			return nil, outcome.New(outcome.ExternalToolFailure, "clean destination", dir, err)
		}
		metrics.RecordDeleted("incomplete", len(incomplete))
	}
	return good, nil
}

// verify logs every discrepancy between the two trees and fails if there
// is any.
func (r *Replicator) verify(log zerolog.Logger, source, received string) error {
	diffs, err := r.compare(source, received)
	if err != nil {
		return outcome.New(outcome.VerificationMismatch, "verify", received, err)
	}
	for _, d := range diffs {
		log.Error().Str("kind", d.Kind.String()).Msg(d.String())
	}
	if len(diffs) > 0 {
		return outcome.New(outcome.VerificationMismatch, "verify", received,
			fmt.Errorf("%d differences", len(diffs)))
	}
	log.Debug().Str("snapshot", received).Msg("verified")
	return nil
}
