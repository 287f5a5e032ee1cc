// Package worker runs daemon jobs one at a time, in the order they were
// requested, against the current configuration.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/mailbox"
)

// Handler runs one job with a snapshot of the configuration.
type Handler func(ctx context.Context, cfg *config.Config) error

// Worker takes jobs from the mailbox and runs their handlers sequentially,
// so a snapshot, a replication and a sweep never overlap.
type Worker struct {
	mu       sync.RWMutex
	cfg      *config.Config
	handlers map[Job]Handler
	log      zerolog.Logger
	mb       *mailbox.Mailbox[Job]

	// Done, when set, is called after every job.
	Done func(job Job, started time.Time, err error)
}

// New creates a worker using config, handlers and mailbox.
func New(cfg *config.Config, handlers map[Job]Handler, mb *mailbox.Mailbox[Job], log zerolog.Logger) *Worker {
	log.Debug().Int("handlers", len(handlers)).Msg("creating worker")
	return &Worker{
		cfg:      cfg,
		handlers: handlers,
		log:      log,
		mb:       mb,
	}
}

// UpdateConfig hot-reloads the configuration used by later jobs. A job
// already running keeps the configuration it started with.
func (w *Worker) UpdateConfig(cfg *config.Config) {
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
}

// Config returns the current configuration.
func (w *Worker) Config() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Start runs the worker loop until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("starting worker")
	for {
		job, ok := w.mb.Take(ctx)
		if !ok {
			w.log.Info().Msg("worker stopped")
			return
		}
		if err := w.Handle(ctx, job); err != nil {
			w.log.Error().Str("job", string(job)).Err(err).Msg("job failed")
		}
	}
}

// Handle runs a single job.
func (w *Worker) Handle(ctx context.Context, job Job) (err error) {
	h, ok := w.handlers[job]
	if !ok {
		return fmt.Errorf("no handler for job %q", job)
	}

	started := time.Now()
	log := w.log.With().Str("job", string(job)).Logger()
	log.Info().Msg("job started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job, r)
		}
		log.Info().Dur("took", time.Since(started)).Err(err).Msg("job finished")
		if w.Done != nil {
			w.Done(job, started, err)
		}
	}()

	return h(ctx, w.Config())
}
