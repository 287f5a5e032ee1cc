package btrfs

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Tool.
type Options struct {
	Binary string // btrfs executable, "btrfs" when empty
	DryRun bool   // log commands without running them
	// Commit is passed to "subvolume delete", e.g. "--commit-each", so that
	// free space is settled when the command returns.
	Commit string
	// TransferTimeout bounds a send|receive pair; zero means no limit.
	TransferTimeout time.Duration
}

// Tool issues btrfs subcommands through a Runner.
type Tool struct {
	runner Runner
	opts   Options
	log    zerolog.Logger
}

// NewTool creates a Tool. A nil runner uses ExecRunner.
func NewTool(runner Runner, opts Options, log zerolog.Logger) *Tool {
	if runner == nil {
		runner = NewExecRunner()
	}
	if opts.Binary == "" {
		opts.Binary = "btrfs"
	}
	return &Tool{runner: runner, opts: opts, log: log}
}

// WithCommit returns a copy of t that deletes with the given commit flag.
func (t *Tool) WithCommit(commit string) *Tool {
	c := *t
	c.opts.Commit = commit
	return &c
}

// DryRun reports whether commands are only logged.
func (t *Tool) DryRun() bool { return t.opts.DryRun }

func (t *Tool) argv(args ...string) []string {
	return append([]string{t.opts.Binary}, args...)
}

func (t *Tool) run(ctx context.Context, argv []string) error {
	cmd := Command{Argv: argv}
	t.log.Info().Str("cmd", cmd.String()).Bool("dry_run", t.opts.DryRun).Msg("running")
	if t.opts.DryRun {
		return nil
	}

	res, err := t.runner.Run(ctx, cmd)
	t.logResult(res, err)
	return err
}

func (t *Tool) logResult(res Result, err error) {
	if out := res.Output(); out != "" {
		t.log.Debug().Strs("argv", res.Argv).Str("output", out).Msg("command output")
	}
	if err != nil {
		t.log.Warn().Str("cmd", Quote(res.Argv)).Int("exit_code", res.ExitCode).Err(err).Msg("command failed")
	}
}

// Snapshot creates a read-only snapshot of src at dst.
func (t *Tool) Snapshot(ctx context.Context, src, dst string) error {
	return t.run(ctx, t.argv("subvolume", "snapshot", "-r", src, dst))
}

// Create makes a new, writable, empty subvolume.
func (t *Tool) Create(ctx context.Context, path string) error {
	return t.run(ctx, t.argv("subvolume", "create", path))
}

// Delete removes the given subvolumes in one invocation.
func (t *Tool) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := []string{"subvolume", "delete"}
	if t.opts.Commit != "" {
		args = append(args, t.opts.Commit)
	}
	return t.run(ctx, t.argv(append(args, paths...)...))
}

// SendCommand builds the send side: every base is offered with -c and btrfs
// picks what it can use.
func (t *Tool) SendCommand(target string, bases []string) Command {
	args := []string{"send"}
	for _, b := range bases {
		args = append(args, "-c", b)
	}
	return Command{Argv: t.argv(append(args, target)...)}
}

// ReceiveCommand builds the receive side.
func (t *Tool) ReceiveCommand(dstDir string) Command {
	return Command{Argv: t.argv("receive", dstDir)}
}

// SendReceive streams target into dstDir. The error joins the failures of
// both processes, each a *ToolError.
func (t *Tool) SendReceive(ctx context.Context, target string, bases []string, dstDir string) error {
	send := t.SendCommand(target, bases)
	recv := t.ReceiveCommand(dstDir)
	t.log.Info().
		Str("cmd", send.String()+" | "+recv.String()).
		Int("bases", len(bases)).
		Bool("dry_run", t.opts.DryRun).
		Msg("running")
	if t.opts.DryRun {
		return nil
	}

	if t.opts.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.TransferTimeout)
		defer cancel()
	}

	pr, err := t.runner.Pipe(ctx, send, recv)
	t.logResult(pr.Sender, errorFor(err, pr.Sender))
	t.logResult(pr.Receiver, errorFor(err, pr.Receiver))
	return err
}

// errorFor picks the ToolError in err that belongs to res.
func errorFor(err error, res Result) error {
	if err == nil {
		return nil
	}
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		var te *ToolError
		if errors.As(e, &te) && slices.Equal(te.Result.Argv, res.Argv) {
			return te
		}
	}
	return nil
}
