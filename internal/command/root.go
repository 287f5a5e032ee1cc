// Package command defines the btrsnap command line.
package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/raoulx24/btrsnap/internal/btrfs"
	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/fs"
	"github.com/raoulx24/btrsnap/internal/jobs"
	"github.com/raoulx24/btrsnap/internal/logging"
	"github.com/raoulx24/btrsnap/internal/outcome"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// Options injects the collaborators tests replace.
type Options struct {
	Runner btrfs.Runner // nil runs the real btrfs
	FS     fs.FS        // nil uses the OS
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time

	// DefaultConfig is the snapshotter's file, config.DefaultPath when empty.
	DefaultConfig string
}

// env is what every subcommand works with once global flags are applied.
type env struct {
	opts       Options
	configPath string
	role       config.Role
	cfg        *config.Config
	log        zerolog.Logger
	jobs       *jobs.Runner
}

// App creates the CLI application. Errors returned by Run carry the exit
// status; see outcome.ExitCode.
func App(opts Options) *cli.App {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FS == nil {
		opts.FS = fs.New()
	}
	if opts.DefaultConfig == "" {
		opts.DefaultConfig = config.DefaultPath
	}
	e := &env{opts: opts}

	// -v counts verbosity
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}

	return &cli.App{
		Name:                   "btrsnap",
		Usage:                  "create, replicate and expire btrfs snapshots",
		Version:                fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:                  globalFlags(),
		UseShortOptionHandling: true,
		Writer:                 opts.Stdout,
		ErrWriter:              opts.Stderr,
		Commands: []*cli.Command{
			snapshotCommand(e),
			replicateCommand(e),
			sweepCommand(e),
			listCommand(e),
			daemonCommand(e),
		},
		OnUsageError:   usageError,
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func usageError(_ *cli.Context, err error, _ bool) error {
	return outcome.Configf("%v", err)
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "configuration file, YAML (.yaml/.yml) or INI (default " + config.DefaultPath + " when present)",
			EnvVars: []string{config.PathEnvVar},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "more logging, repeat for more",
			Count:   new(int),
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "log at debug level",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: trace, debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format: console or json",
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Aliases: []string{"n"},
			Usage:   "log btrfs commands without running them",
		},
		&cli.StringFlag{
			Name:  "btrfs",
			Usage: "btrfs command",
		},
		&cli.StringFlag{
			Name:  "good",
			Usage: "suffix for correctly transferred snapshots",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write node_exporter textfile metrics to this path",
		},
	}
}

// before returns the Before hook of a subcommand. role decides what an INI
// file configures; only the snapshot command falls back to DefaultPath,
// which is the snapshotter's file.
func (e *env) before(role config.Role) cli.BeforeFunc {
	return func(c *cli.Context) error {
		e.role = role
		return e.setup(c)
	}
}

// setup loads the configuration, applies global flags and builds the
// logger.
func (e *env) setup(c *cli.Context) error {
	e.configPath = c.String("config")
	cfg, err := e.load(c)
	if err != nil {
		return err
	}
	e.cfg = cfg

	level := cfg.Logging.Level
	if c.Count("verbose") > 0 || c.Bool("debug") {
		level = logging.LevelFromVerbosity(c.Count("verbose"), c.Bool("debug"))
	}
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	e.log = logging.New(logging.Config{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: e.opts.Stderr,
	})
	e.jobs = jobs.New(e.opts.Runner, e.opts.FS, e.log)

	if e.configPath != "" {
		e.log.Debug().Str("config", e.configPath).Msg("configuration loaded")
	}
	return nil
}

// load reads the configuration file, if any, and applies the global flags
// on top. It is also used by the daemon to reload.
func (e *env) load(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	switch {
	case e.configPath != "":
		loaded, err := config.Load(e.configPath, e.role)
		if err != nil {
			return nil, outcome.New(outcome.ConfigError, "config", e.configPath, err)
		}
		cfg = loaded
	case e.role == config.RoleSnapshot:
		path := e.opts.DefaultConfig
		if _, err := os.Stat(path); err == nil {
			loaded, err := config.Load(path, e.role)
			if err != nil {
				return nil, outcome.New(outcome.ConfigError, "config", path, err)
			}
			cfg = loaded
			e.configPath = path
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, outcome.New(outcome.ConfigError, "config", path, err)
		}
	}

	if c.IsSet("dry-run") {
		cfg.Btrfs.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("btrfs") {
		cfg.Btrfs.Binary = c.String("btrfs")
	}
	if c.IsSet("good") {
		cfg.GoodSuffix = c.String("good")
	}
	if c.IsSet("metrics-file") {
		cfg.Metrics.Textfile = c.String("metrics-file")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	return cfg, nil
}
