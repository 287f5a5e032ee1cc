package watcher

import (
	"os"

	"github.com/raoulx24/btrsnap/internal/worker"
)

// detect requests a reload if the config file changed and is no longer
// being written.
func (w *Watcher) detect() bool {
	w.mu.RLock()
	path := w.path
	lastMod := w.lastModTime
	lastSize := w.lastSize
	w.mu.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		// editors replace files; the next event or tick sees the new one
		w.log.Debug().Str("path", path).Err(err).Msg("config not readable")
		return false
	}
	if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
		return false
	}
	if !w.isStable() {
		w.log.Debug().Str("path", path).Msg("config still changing")
		return false
	}

	w.mu.Lock()
	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
	w.mu.Unlock()

	if w.mb.Put(worker.Reload) {
		w.log.Info().Str("path", path).Msg("config changed, reload queued")
	}
	return true
}
