package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/btrsnap/internal/outcome"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("BTRSNAP_TEST_ROOT", "/mnt/backup")
	path := writeFile(t, "btrsnap.yaml", `
goodSuffix: .ok
btrfs:
  binary: /usr/bin/btrfs
  transferTimeout: 2h
snapshot:
  keep: 24
  volumes:
    - name: home
      source: /home
      destination: /snapshots/home
replicate:
  compare: true
  cleanIncomplete: false
  pairs:
    - name: home
      source: /snapshots/home
      destinationDirectory: $(BTRSNAP_TEST_ROOT)
      keep: 3
sweep:
  roots: [/mnt/backup]
  minFreePercent: 15.5
  transientAge: 36h
  deleteDelay: 5s
schedule:
  snapshot: "@hourly"
`)

	cfg, err := Load(path, RoleNone)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ".ok", cfg.GoodSuffix)
	assert.Equal(t, "/usr/bin/btrfs", cfg.Btrfs.Binary)
	assert.Equal(t, 2*time.Hour, cfg.Btrfs.TransferTimeout)
	assert.Equal(t, 24, cfg.Snapshot.Keep)
	assert.Equal(t, "~#@.", cfg.Snapshot.Protected, "unset fields keep defaults")
	assert.True(t, cfg.Replicate.Compare)
	assert.True(t, cfg.Replicate.CreateDestination)
	assert.False(t, cfg.Replicate.CleanIncomplete)
	assert.Equal(t, 15.5, cfg.Sweep.MinFreePercent)
	assert.Equal(t, 36*time.Hour, cfg.Sweep.TransientAge)
	assert.Equal(t, 5*time.Second, cfg.Sweep.DeleteDelay)
	assert.Equal(t, 2*time.Second, cfg.Sweep.StatDelay)
	assert.Equal(t, "@hourly", cfg.Schedule.Snapshot)

	pairs, err := ResolvePairs(cfg.Replicate.Pairs)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "/mnt/backup/home", pairs[0].Destination)
	assert.Equal(t, 3, pairs[0].KeepOr(1))
}

func TestLoadINI(t *testing.T) {
	path := writeFile(t, "btrfs-snapshots", `
[DEFAULT]
destinationdirectory = /snapshots
keep = 5

[home]
sourcedirectory = /vol

[root]
source = /
destination = /snapshots/rootfs
Keep = 2
`)

	cfg, err := Load(path, RoleSnapshot)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	pairs, err := ResolvePairs(cfg.Snapshot.Volumes)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, "home", pairs[0].Name)
	assert.Equal(t, "/vol/home", pairs[0].Source)
	assert.Equal(t, "/snapshots/home", pairs[0].Destination)
	assert.Equal(t, 5, pairs[0].KeepOr(-1))

	assert.Equal(t, "/", pairs[1].Source)
	assert.Equal(t, "/snapshots/rootfs", pairs[1].Destination)
	assert.Equal(t, 2, pairs[1].KeepOr(-1))

	assert.Empty(t, cfg.Replicate.Pairs, "snapshot sections are not backup pairs")
}

func TestLoadINIRoles(t *testing.T) {
	path := writeFile(t, "backups", "[home]\nsource=/snapshots/home\ndestination=/backup/home\n")

	cfg, err := Load(path, RoleReplicate)
	require.NoError(t, err)
	assert.Empty(t, cfg.Snapshot.Volumes)
	require.Len(t, cfg.Replicate.Pairs, 1)
	assert.Equal(t, "/backup/home", cfg.Replicate.Pairs[0].Destination)

	_, err = Load(path, RoleNone)
	assert.ErrorContains(t, err, "INI")
}

func TestLoadINIBadKeep(t *testing.T) {
	path := writeFile(t, "conf", "[home]\nsource=/a\ndestination=/b\nkeep=lots\n")
	_, err := Load(path, RoleSnapshot)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), RoleNone)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty suffix", func(c *Config) { c.GoodSuffix = "" }},
		{"no dot", func(c *Config) { c.GoodSuffix = "good" }},
		{"dot only", func(c *Config) { c.GoodSuffix = "." }},
		{"slash", func(c *Config) { c.GoodSuffix = ".a/b" }},
		{"empty binary", func(c *Config) { c.Btrfs.Binary = "" }},
		{"negative keep", func(c *Config) { c.Sweep.Keep = -1 }},
		{"zero sweep keep", func(c *Config) { c.Sweep.Keep = 0 }},
		{"free over 100", func(c *Config) { c.Sweep.MinFreePercent = 101 }},
		{"negative delay", func(c *Config) { c.Sweep.DeleteDelay = -time.Second }},
		{"pair without destination", func(c *Config) {
			c.Replicate.Pairs = []Pair{{Name: "x", Source: "/a"}}
		}},
		{"reload method", func(c *Config) { c.ConfigReload.Method = "inotify" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, outcome.ConfigError, outcome.KindOf(err))
			assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(err))
		})
	}
}

func TestArgPairs(t *testing.T) {
	pairs, err := ArgPairs([]string{"/snap/home", "/backup/home"}, false)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Name: "home", Source: "/snap/home", Destination: "/backup/home"}}, pairs)

	_, err = ArgPairs([]string{"/only"}, false)
	assert.Error(t, err)

	src := t.TempDir()
	for _, name := range []string{"var", "home"} {
		require.NoError(t, os.Mkdir(filepath.Join(src, name), 0o755))
	}
	pairs, err = ArgPairs([]string{src, "/backup"}, true)
	require.NoError(t, err)
	assert.Equal(t, []Pair{
		{Name: "home", Source: filepath.Join(src, "home"), Destination: "/backup/home"},
		{Name: "var", Source: filepath.Join(src, "var"), Destination: "/backup/var"},
	}, pairs)

	_, err = ArgPairs([]string{filepath.Join(src, "missing"), "/backup"}, true)
	assert.Error(t, err)
}
