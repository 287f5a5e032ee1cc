package command

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/btrsnap/internal/btrfs/btrfstest"
	"github.com/raoulx24/btrsnap/internal/inventory"
	"github.com/raoulx24/btrsnap/internal/outcome"
)

const stamp = "2024-03-10T12:00:00+01:00"

type testApp struct {
	runner        *btrfstest.Runner
	stdout        bytes.Buffer
	defaultConfig string
}

func (a *testApp) run(args ...string) error {
	return a.runContext(context.Background(), args...)
}

func (a *testApp) runContext(ctx context.Context, args ...string) error {
	app := App(Options{
		Runner: a.runner,
		Stdout: &a.stdout,
		Stderr: io.Discard,
		Now:    func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },

		DefaultConfig: a.defaultConfig,
	})
	return app.RunContext(ctx, append([]string{"btrsnap"}, args...))
}

func newTestApp() *testApp {
	return &testApp{
		runner:        &btrfstest.Runner{Simulate: true},
		defaultConfig: "/nonexistent/btrfs-snapshots",
	}
}

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func TestSnapshotAndReplicateFromArguments(t *testing.T) {
	root := t.TempDir()
	live := mkdir(t, root, "live", "home")
	snaps := mkdir(t, root, "snapshots", "home")
	backup := mkdir(t, root, "backup", "home")

	a := newTestApp()
	require.NoError(t, a.run("-vv", "snapshot", "--timestamp", stamp, live, snaps))
	assert.DirExists(t, filepath.Join(snaps, stamp))

	require.NoError(t, a.run("replicate", snaps, backup))
	assert.DirExists(t, filepath.Join(backup, stamp+".good"))

	err := a.run("replicate", snaps, backup)
	assert.Equal(t, outcome.ExitAlreadyReplicated, outcome.ExitCode(err))

	assert.NoError(t, a.run("replicate", "-s", snaps, backup))
}

func TestDirectoriesMode(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, "live", "home")
	mkdir(t, root, "live", "srv")
	mkdir(t, root, "snapshots", "home")
	mkdir(t, root, "snapshots", "srv")

	a := newTestApp()
	require.NoError(t, a.run("snapshot", "-D", "--timestamp", stamp,
		filepath.Join(root, "live"), filepath.Join(root, "snapshots")))

	assert.DirExists(t, filepath.Join(root, "snapshots", "home", stamp))
	assert.DirExists(t, filepath.Join(root, "snapshots", "srv", stamp))
}

func TestDryRunRunsNothing(t *testing.T) {
	root := t.TempDir()
	live := mkdir(t, root, "live", "home")
	snaps := mkdir(t, root, "snapshots", "home")

	a := newTestApp()
	require.NoError(t, a.run("-n", "snapshot", live, snaps))
	assert.Empty(t, a.runner.Calls())
}

func TestSweepMissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")

	a := newTestApp()
	err := a.run("sweep", missing)
	assert.Equal(t, outcome.ExitMissingDestination, outcome.ExitCode(err))

	assert.NoError(t, a.run("sweep", "--skip", missing))
}

func TestSweepArguments(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, "home", "2024-01-01T00:00:00+00:00")

	a := newTestApp()
	require.NoError(t, a.run("sweep", "--free", "0", "--delete-delay", "0s", "--commit=--commit-after", root))

	calls := a.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "--commit-after", calls[0].Argv[3])
}

func TestListJSON(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, "2024-03-09T12:00:00+00:00.good")

	a := newTestApp()
	require.NoError(t, a.run("list", "-o", "json", root))

	var entries []inventory.Entry
	require.NoError(t, json.Unmarshal(a.stdout.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Good)
	assert.Equal(t, int64(24*3600), entries[0].AgeSeconds)
}

func TestUsageErrorsAreConfigErrors(t *testing.T) {
	a := newTestApp()
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(a.run("sweep", "--keep", "many")))
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(a.run("sweep", "--keep", "0", t.TempDir())))
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(a.run("snapshot", "only-one-arg")))
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(a.run("--good", "x", "sweep", t.TempDir())))
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(a.run("list", "-o", "xml", t.TempDir())))
}

func TestMissingConfigFile(t *testing.T) {
	a := newTestApp()
	err := a.run("--config", filepath.Join(t.TempDir(), "absent.yaml"), "sweep")
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(err))
}

func writeConfig(t *testing.T, root, content string) string {
	t.Helper()
	path := filepath.Join(root, "btrsnap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfigFile(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, "snapshots", "home", "2024-01-01")
	mkdir(t, root, "backup", "home")

	path := writeConfig(t, root, `
goodSuffix: .done
replicate:
  pairs:
    - name: home
      sourceDirectory: `+filepath.Join(root, "snapshots")+`
      destinationDirectory: `+filepath.Join(root, "backup")+`
`)

	a := newTestApp()
	require.NoError(t, a.run("--config", path, "replicate"))
	assert.DirExists(t, filepath.Join(root, "backup", "home", "2024-01-01.done"))

	a.stdout.Reset()
	require.NoError(t, a.run("--config", path, "list"))
	assert.Contains(t, a.stdout.String(), "2024-01-01.done")
}

func TestDaemonRunsScheduledJobs(t *testing.T) {
	root := t.TempDir()
	live := mkdir(t, root, "live", "home")
	snaps := mkdir(t, root, "snapshots", "home")

	path := writeConfig(t, root, `
snapshot:
  volumes:
    - name: home
      source: `+live+`
      destination: `+snaps+`
schedule:
  snapshot: "@every 1h"
configReload:
  enabled: false
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newTestApp()
	errc := make(chan error, 1)
	go func() { errc <- a.runContext(ctx, "--config", path, "daemon", "--run-now") }()

	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(snaps)
		return err == nil && len(entries) == 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemonNeedsSchedule(t *testing.T) {
	a := newTestApp()
	err := a.run("daemon")
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(err))
}

func TestVerboseAndVersionFlags(t *testing.T) {
	root := t.TempDir()
	live := mkdir(t, root, "live", "home")
	snaps := mkdir(t, root, "snapshots", "home")

	a := newTestApp()
	require.NoError(t, a.run("-v", "snapshot", "--timestamp", stamp, live, snaps))
	assert.DirExists(t, filepath.Join(snaps, stamp))

	require.NoError(t, a.run("--version"))
	assert.Contains(t, a.stdout.String(), "btrsnap version "+Version)

	a.stdout.Reset()
	require.NoError(t, a.run("-V"))
	assert.Contains(t, a.stdout.String(), "btrsnap version")

	a.stdout.Reset()
	require.NoError(t, a.run("--help"))
	assert.Contains(t, a.stdout.String(), "--verbose")
}

func TestSnapshotterFileOnlyConfiguresSnapshots(t *testing.T) {
	root := t.TempDir()
	live := mkdir(t, root, "live", "home")
	snaps := mkdir(t, root, "snapshots", "home")
	mkdir(t, snaps, "2024-03-08T12:00:00+01:00")
	mkdir(t, snaps, "2024-03-09T12:00:00+01:00")

	ini := filepath.Join(root, "btrfs-snapshots")
	require.NoError(t, os.WriteFile(ini, []byte("[home]\nsource = "+live+"\ndestination = "+snaps+"\n"), 0o644))

	a := newTestApp()
	a.defaultConfig = ini

	err := a.run("replicate")
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(err), "replicate does not read the snapshotter's file")
	assert.Empty(t, a.runner.Calls())

	entries, err := os.ReadDir(snaps)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	err = a.run("--config", ini, "sweep", root)
	assert.Equal(t, outcome.ExitConfig, outcome.ExitCode(err), "INI files do not configure the sweeper")
	assert.Empty(t, a.runner.Calls())

	require.NoError(t, a.run("snapshot", "--timestamp", stamp))
	assert.DirExists(t, filepath.Join(snaps, stamp))
}

func TestReplicateINI(t *testing.T) {
	root := t.TempDir()
	snaps := mkdir(t, root, "snapshots", "home")
	mkdir(t, snaps, stamp)
	backup := mkdir(t, root, "backup", "home")

	ini := filepath.Join(root, "backups.conf")
	require.NoError(t, os.WriteFile(ini, []byte("[home]\nsource = "+snaps+"\ndestination = "+backup+"\n"), 0o644))

	a := newTestApp()
	require.NoError(t, a.run("--config", ini, "replicate"))
	assert.DirExists(t, filepath.Join(backup, stamp+".good"))
	assert.DirExists(t, filepath.Join(snaps, stamp))
}
