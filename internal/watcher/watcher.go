// Package watcher monitors the configuration file and requests a reload
// when it changes.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/raoulx24/btrsnap/internal/config"
	"github.com/raoulx24/btrsnap/internal/fsprobe"
	"github.com/raoulx24/btrsnap/internal/mailbox"
	"github.com/raoulx24/btrsnap/internal/worker"
)

// Watcher observes the config file and puts a reload job in the mailbox
// when its content settles after a change.
type Watcher struct {
	mu sync.RWMutex

	path      string
	interval  time.Duration
	mode      string
	debounce  time.Duration
	stability time.Duration

	log zerolog.Logger

	lastModTime time.Time
	lastSize    int64

	mb *mailbox.Mailbox[worker.Job]
}

// New creates a watcher for the config file at path.
func New(path string, cfg config.ReloadConfig, log zerolog.Logger, mb *mailbox.Mailbox[worker.Job]) *Watcher {
	w := &Watcher{
		path:      path,
		interval:  cfg.PollInterval,
		mode:      cfg.Method,
		debounce:  cfg.Debounce,
		stability: cfg.Debounce,
		log:       log,
		mb:        mb,
	}
	if w.interval <= 0 {
		w.interval = 30 * time.Second
	}
	if w.mode == "" {
		w.mode = "auto"
	}
	if info, err := os.Stat(path); err == nil {
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
	}
	return w
}

// Start chooses the watching strategy and blocks until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.RLock()
	mode := w.mode
	dir := filepath.Dir(w.path)
	w.mu.RUnlock()

	switch mode {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "auto":
		res := fsprobe.Probe(dir, 0)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn().Str("dir", dir).Str("reason", res.Reason).Msg("fsnotify disabled, polling")
		w.StartPolling(ctx)
		return nil

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}
