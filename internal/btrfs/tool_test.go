package btrfs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/btrsnap/internal/btrfs"
	"github.com/raoulx24/btrsnap/internal/btrfs/btrfstest"
)

func newTool(r btrfs.Runner, opts btrfs.Options) *btrfs.Tool {
	return btrfs.NewTool(r, opts, zerolog.Nop())
}

func TestToolCommands(t *testing.T) {
	r := &btrfstest.Runner{}
	tool := newTool(r, btrfs.Options{Binary: "/sbin/btrfs"})
	ctx := context.Background()

	require.NoError(t, tool.Snapshot(ctx, "/home", "/snap/home/2024-01-01T00:00:00+00:00"))
	require.NoError(t, tool.Create(ctx, "/backup/home"))
	require.NoError(t, tool.Delete(ctx, "/snap/home/a", "/snap/home/b"))
	require.NoError(t, tool.WithCommit("--commit-each").Delete(ctx, "/backup/home/c"))
	require.NoError(t, tool.Delete(ctx))
	require.NoError(t, tool.SendReceive(ctx, "/snap/home/c", []string{"/snap/home/a", "/snap/home/b"}, "/backup/home"))

	assert.Equal(t, []string{
		"/sbin/btrfs subvolume snapshot -r /home /snap/home/2024-01-01T00:00:00+00:00",
		"/sbin/btrfs subvolume create /backup/home",
		"/sbin/btrfs subvolume delete /snap/home/a /snap/home/b",
		"/sbin/btrfs subvolume delete --commit-each /backup/home/c",
		"/sbin/btrfs send -c /snap/home/a -c /snap/home/b /snap/home/c | /sbin/btrfs receive /backup/home",
	}, r.Lines())
}

func TestToolDefaultsBinary(t *testing.T) {
	r := &btrfstest.Runner{}
	require.NoError(t, newTool(r, btrfs.Options{}).Create(context.Background(), "/x"))
	assert.Equal(t, []string{"btrfs subvolume create /x"}, r.Lines())
}

func TestToolDryRun(t *testing.T) {
	r := &btrfstest.Runner{}
	tool := newTool(r, btrfs.Options{DryRun: true})
	require.NoError(t, tool.Snapshot(context.Background(), "/a", "/b"))
	require.NoError(t, tool.SendReceive(context.Background(), "/a", nil, "/b"))
	assert.Empty(t, r.Calls())
	assert.True(t, tool.DryRun())
}

func TestToolReportsBothPipeFailures(t *testing.T) {
	r := &btrfstest.Runner{FailPipe: func(_, _ []string) (int, int) { return 1, 2 }}
	err := newTool(r, btrfs.Options{}).SendReceive(context.Background(), "/s/x", nil, "/d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "btrfs send /s/x failed (1)")
	assert.Contains(t, err.Error(), "btrfs receive /d failed (2)")

	var te *btrfs.ToolError
	assert.True(t, errors.As(err, &te))
}

type deadlineRunner struct {
	btrfstest.Runner
	deadline time.Time
	ok       bool
}

func (d *deadlineRunner) Pipe(ctx context.Context, first, second btrfs.Command) (btrfs.PipeResult, error) {
	d.deadline, d.ok = ctx.Deadline()
	return d.Runner.Pipe(ctx, first, second)
}

func TestToolTransferTimeout(t *testing.T) {
	r := &deadlineRunner{}
	start := time.Now()
	err := newTool(r, btrfs.Options{TransferTimeout: time.Hour}).SendReceive(context.Background(), "/s/x", nil, "/d")
	require.NoError(t, err)
	require.True(t, r.ok)
	assert.WithinDuration(t, start.Add(time.Hour), r.deadline, time.Minute)

	r = &deadlineRunner{}
	require.NoError(t, newTool(r, btrfs.Options{}).SendReceive(context.Background(), "/s/x", nil, "/d"))
	assert.False(t, r.ok)
}
