package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/logging"
	"github.com/raoulx24/btrsnap/internal/mailbox"
	"github.com/raoulx24/btrsnap/internal/outcome"
	"github.com/raoulx24/btrsnap/internal/scheduler"
	"github.com/raoulx24/btrsnap/internal/watcher"
	"github.com/raoulx24/btrsnap/internal/worker"
)

func daemonCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:   "daemon",
		Usage:  "run the scheduled jobs until interrupted",
		Before: e.before(config.RoleNone),
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "run-now", Usage: "queue every scheduled job once at start"},
		},
		OnUsageError: usageError,
		Action: func(c *cli.Context) error {
			if err := e.cfg.Validate(); err != nil {
				return err
			}
			return e.daemon(c)
		},
	}
}

func (e *env) daemon(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.Component(e.log, "daemon")
	cfg := e.cfg

	// Mailbox for jobs; a job fired while the same one is pending is dropped
	mb := mailbox.New[worker.Job]()

	sched := scheduler.New(func(j worker.Job) { mb.Put(j) }, logging.Component(e.log, "scheduler"))
	if err := sched.Apply(cfg.Schedule); err != nil {
		return err
	}
	if len(sched.Next()) == 0 {
		return outcome.Configf("no job scheduled")
	}

	var watch *watcher.Watcher
	if cfg.ConfigReload.Enabled && e.configPath != "" {
		watch = watcher.New(e.configPath, cfg.ConfigReload, logging.Component(e.log, "watcher"), mb)
	}

	handlers := e.jobs.Handlers()
	var w *worker.Worker
	handlers[worker.Reload] = func(context.Context, *config.Config) error {
		next, err := e.load(c)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := sched.Apply(next.Schedule); err != nil {
			return err
		}
		w.UpdateConfig(next)
		if watch != nil {
			watch.UpdateConfig(next.ConfigReload)
		}
		log.Info().Msg("configuration reloaded")
		return nil
	}
	w = worker.New(cfg, handlers, mb, logging.Component(e.log, "worker"))

	if c.Bool("run-now") {
		for _, job := range []worker.Job{worker.Snapshot, worker.Replicate, worker.Sweep} {
			if _, ok := sched.Next()[job]; ok {
				mb.Put(job)
			}
		}
	}

	sched.Start()
	defer sched.Stop()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	if watch != nil {
		go func() {
			if err := watch.Start(ctx); err != nil {
				log.Error().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	// Hot reload on SIGHUP
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.Info().Interface("next", sched.Next()).Msg("daemon started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			<-done
			return nil
		case <-hup:
			mb.Put(worker.Reload)
		}
	}
}
