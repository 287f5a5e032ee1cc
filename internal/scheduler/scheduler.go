// Package scheduler fires daemon jobs from cron expressions.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/outcome"
	"github.com/raoulx24/btrsnap/internal/worker"
)

// Parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as @daily.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler owns a cron instance whose entries enqueue jobs.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[worker.Job]cron.EntryID
	enqueue func(worker.Job)
	log     zerolog.Logger
}

// New creates a stopped scheduler. enqueue is called from cron's goroutine
// and must not block.
func New(enqueue func(worker.Job), log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLogger(cronLogger{log: log}),
		),
		entries: make(map[worker.Job]cron.EntryID),
		enqueue: enqueue,
		log:     log,
	}
}

// Validate parses every non-empty expression of cfg.
func Validate(cfg config.ScheduleConfig) error {
	for job, spec := range specs(cfg) {
		if spec == "" {
			continue
		}
		if _, err := Parser.Parse(spec); err != nil {
			return outcome.Configf("schedule %s: %v", job, err)
		}
	}
	return nil
}

func specs(cfg config.ScheduleConfig) map[worker.Job]string {
	return map[worker.Job]string{
		worker.Snapshot:  cfg.Snapshot,
		worker.Replicate: cfg.Replicate,
		worker.Sweep:     cfg.Sweep,
	}
}

// Apply replaces all entries with the ones described by cfg. On error the
// previous entries stay in place.
func (s *Scheduler) Apply(cfg config.ScheduleConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for job, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, job)
	}
	for job, spec := range specs(cfg) {
		if spec == "" {
			continue
		}
		id, err := s.cron.AddFunc(spec, func() { s.fire(job) })
		if err != nil {
			return fmt.Errorf("scheduling %s: %w", job, err)
		}
		s.entries[job] = id
		s.log.Info().Str("job", string(job)).Str("schedule", spec).Msg("job scheduled")
	}
	return nil
}

func (s *Scheduler) fire(job worker.Job) {
	s.log.Debug().Str("job", string(job)).Msg("schedule fired")
	s.enqueue(job)
}

// Next returns the next activation of every scheduled job.
func (s *Scheduler) Next() map[worker.Job]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[worker.Job]time.Time, len(s.entries))
	for job, id := range s.entries {
		out[job] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops firing and waits for running entries to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
