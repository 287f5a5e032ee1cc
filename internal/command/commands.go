package command

import (
	"github.com/urfave/cli/v2"

	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/inventory"
	"github.com/raoulx24/btrsnap/internal/outcome"
	"github.com/raoulx24/btrsnap/internal/snapshot"
)

func directoriesFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "directories",
		Aliases: []string{"D"},
		Usage:   "pair every subdirectory of the sources with the same name under the destination",
	}
}

// pairsFromArgs returns the pairs given on the command line, or nil when
// there are no arguments and the configuration applies.
func pairsFromArgs(c *cli.Context) ([]config.Pair, error) {
	if c.NArg() == 0 {
		return nil, nil
	}
	pairs, err := config.ArgPairs(c.Args().Slice(), c.Bool("directories"))
	if err != nil {
		return nil, outcome.Configf("%v", err)
	}
	return pairs, nil
}

func snapshotCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "snapshot",
		Before:    e.before(config.RoleSnapshot),
		Usage:     "create read-only timestamped snapshots and prune old ones",
		ArgsUsage: "[SOURCE DEST_DIR | -D SRC_DIR... DEST_DIR]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keep", Usage: "snapshots to keep per destination, < 1 keeps all"},
			&cli.StringFlag{Name: "timestamp", Usage: "snapshot name instead of the current time"},
			&cli.StringFlag{Name: "protected", Usage: "characters marking snapshots that are never pruned"},
			&cli.BoolFlag{Name: "keep-going", Usage: "continue with other volumes after a failure"},
			&cli.BoolFlag{Name: "check-subvolume", Usage: "refuse sources that are not btrfs subvolumes"},
			directoriesFlag(),
		},
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			cfg := e.cfg
			sc := &cfg.Snapshot
			if c.IsSet("keep") {
				sc.Keep = c.Int("keep")
			}
			if c.IsSet("timestamp") {
				sc.Timestamp = c.String("timestamp")
			}
			if c.IsSet("protected") {
				sc.Protected = c.String("protected")
			}
			if c.IsSet("keep-going") {
				sc.KeepGoing = c.Bool("keep-going")
			}
			if c.IsSet("check-subvolume") {
				sc.CheckSubvolume = c.Bool("check-subvolume")
			}
			pairs, err := pairsFromArgs(c)
			if err != nil {
				return err
			}
			if pairs != nil {
				sc.Volumes = pairs
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return e.jobs.Snapshot(c.Context, cfg)
		},
	}
}

func replicateCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "replicate",
		Before:    e.before(config.RoleReplicate),
		Usage:     "send the newest snapshot of each source to its destination",
		ArgsUsage: "[SOURCE DEST | -D SRC_DIR... DEST_DIR]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "compare", Aliases: []string{"c"}, Usage: "compare the received snapshot with the source"},
			&cli.BoolFlag{Name: "skip", Aliases: []string{"s"}, Usage: "already replicated counts as success"},
			&cli.BoolFlag{Name: "partial", Aliases: []string{"p"}, Usage: "missing destination counts as success"},
			&cli.BoolFlag{Name: "missing", Usage: "empty or missing source counts as success"},
			&cli.BoolFlag{Name: "no-create-dest", Usage: "do not create missing destinations"},
			&cli.BoolFlag{Name: "no-clean", Usage: "keep incomplete snapshots in the destination"},
			&cli.BoolFlag{Name: "keep-going", Usage: "continue with other pairs after a failure"},
			&cli.DurationFlag{Name: "timeout", Usage: "abort a transfer after this long, 0 for no limit"},
			directoriesFlag(),
		},
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			cfg := e.cfg
			rc := &cfg.Replicate
			if c.IsSet("compare") {
				rc.Compare = c.Bool("compare")
			}
			if c.IsSet("skip") {
				rc.AlreadyOK = c.Bool("skip")
			}
			if c.IsSet("partial") {
				rc.PartialOK = c.Bool("partial")
			}
			if c.IsSet("missing") {
				rc.MissingOK = c.Bool("missing")
			}
			if c.Bool("no-create-dest") {
				rc.CreateDestination = false
			}
			if c.Bool("no-clean") {
				rc.CleanIncomplete = false
			}
			if c.IsSet("keep-going") {
				rc.KeepGoing = c.Bool("keep-going")
			}
			if c.IsSet("timeout") {
				cfg.Btrfs.TransferTimeout = c.Duration("timeout")
			}
			pairs, err := pairsFromArgs(c)
			if err != nil {
				return err
			}
			if pairs != nil {
				rc.Pairs = pairs
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return e.jobs.Replicate(c.Context, cfg)
		},
	}
}

func sweepCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "sweep",
		Before:    e.before(config.RoleNone),
		Usage:     "delete stale transient snapshots and old good ones when space is short",
		ArgsUsage: "[ROOT...]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keep", Usage: "good snapshots always kept per directory, at least 1"},
			&cli.Float64Flag{Name: "free", Usage: "minimum percent of free space"},
			&cli.DurationFlag{Name: "transient-age", Usage: "age past which transient snapshots are deleted"},
			&cli.DurationFlag{Name: "delete-delay", Usage: "pause after each deletion"},
			&cli.DurationFlag{Name: "stat-delay", Usage: "pause between the two free space readings"},
			&cli.BoolFlag{Name: "skip", Usage: "silently skip missing roots"},
			&cli.StringFlag{Name: "commit", Usage: "option for btrfs subvolume delete"},
		},
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			cfg := e.cfg
			sc := &cfg.Sweep
			if c.IsSet("keep") {
				sc.Keep = c.Int("keep")
			}
			if c.IsSet("free") {
				sc.MinFreePercent = c.Float64("free")
			}
			if c.IsSet("transient-age") {
				sc.TransientAge = c.Duration("transient-age")
			}
			if c.IsSet("delete-delay") {
				sc.DeleteDelay = c.Duration("delete-delay")
			}
			if c.IsSet("stat-delay") {
				sc.StatDelay = c.Duration("stat-delay")
			}
			if c.IsSet("skip") {
				sc.SkipMissing = c.Bool("skip")
			}
			if c.IsSet("commit") {
				sc.Commit = c.String("commit")
			}
			if c.NArg() > 0 {
				sc.Roots = c.Args().Slice()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return e.jobs.Sweep(c.Context, cfg)
		},
	}
}

func listCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "list",
		Before:    e.before(config.RoleNone),
		Usage:     "show the snapshots of the given or configured directories",
		ArgsUsage: "[DIR...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: table, json, yaml",
				Value:   "table",
			},
		},
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			dirs := c.Args().Slice()
			if len(dirs) == 0 {
				var err error
				if dirs, err = configuredDirs(e.cfg); err != nil {
					return err
				}
			}
			if len(dirs) == 0 {
				return outcome.Configf("no directories to list")
			}

			naming := snapshot.Naming{GoodSuffix: e.cfg.GoodSuffix, Protected: e.cfg.Snapshot.Protected}
			now := e.opts.Now()
			entries, err := inventory.List(e.opts.FS, naming, dirs, now)
			if err != nil {
				return outcome.New(outcome.MissingSource, "list", "", err)
			}
			if err := inventory.Write(c.App.Writer, c.String("output"), entries, now); err != nil {
				return outcome.Configf("%v", err)
			}
			return nil
		},
	}
}

// configuredDirs returns the snapshot and backup directories named in cfg,
// without duplicates.
func configuredDirs(cfg *config.Config) ([]string, error) {
	snapPairs, err := config.ResolvePairs(cfg.Snapshot.Volumes)
	if err != nil {
		return nil, outcome.Configf("%v", err)
	}
	repPairs, err := config.ResolvePairs(cfg.Replicate.Pairs)
	if err != nil {
		return nil, outcome.Configf("%v", err)
	}

	seen := map[string]bool{}
	var dirs []string
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	for _, p := range snapPairs {
		add(p.Destination)
	}
	for _, p := range repPairs {
		add(p.Destination)
	}
	return dirs, nil
}
