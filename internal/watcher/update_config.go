package watcher

import (
	"os"

	"github.com/raoulx24/btrsnap/internal/config"
)

// UpdateConfig applies new timing settings after a reload. The watching
// method and the file itself only change on restart.
func (w *Watcher) UpdateConfig(cfg config.ReloadConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cfg.PollInterval > 0 {
		w.interval = cfg.PollInterval
	}
	w.debounce = cfg.Debounce
	w.stability = cfg.Debounce

	// the reload just read this version
	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
	}
}
