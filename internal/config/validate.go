package config

import (
	"strings"

	"github.com/raoulx24/btrsnap/internal/outcome"
)

// Validate checks the values every command relies on.
func (c *Config) Validate() error {
	if len(c.GoodSuffix) < 2 || !strings.HasPrefix(c.GoodSuffix, ".") {
		return outcome.Configf("good suffix %q must start with '.' and have at least one more character", c.GoodSuffix)
	}
	if strings.ContainsRune(c.GoodSuffix, '/') {
		return outcome.Configf("good suffix %q must not contain '/'", c.GoodSuffix)
	}
	if c.Btrfs.Binary == "" {
		return outcome.Configf("btrfs binary must not be empty")
	}
	if c.Btrfs.TransferTimeout < 0 {
		return outcome.Configf("transfer timeout must not be negative")
	}

	s := c.Sweep
	// the newest good snapshot is the base of the next incremental send
	if s.Keep < 1 {
		return outcome.Configf("sweep keep %d must be at least 1", s.Keep)
	}
	if s.MinFreePercent < 0 || s.MinFreePercent > 100 {
		return outcome.Configf("minimum free percent %g must be within 0..100", s.MinFreePercent)
	}
	if s.TransientAge < 0 || s.DeleteDelay < 0 || s.StatDelay < 0 {
		return outcome.Configf("sweep ages and delays must not be negative")
	}

	for _, p := range append(append([]Pair(nil), c.Snapshot.Volumes...), c.Replicate.Pairs...) {
		if _, err := p.Resolve(); err != nil {
			return outcome.Configf("%v", err)
		}
		if p.Keep != nil && *p.Keep < -1 {
			return outcome.Configf("pair %q: keep %d is invalid", p.Name, *p.Keep)
		}
	}

	switch c.ConfigReload.Method {
	case "", "auto", "fsnotify", "poll":
	default:
		return outcome.Configf("unknown config reload method %q", c.ConfigReload.Method)
	}
	return nil
}
