// Package btrfstest provides a recording btrfs.Runner for tests.
package btrfstest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/raoulx24/btrsnap/internal/btrfs"
)

// Call is one recorded invocation. Pipes record both commands.
type Call struct {
	Argv     []string
	Receiver []string // set for pipes
}

// Line renders the call as a shell line.
func (c Call) Line() string {
	if c.Receiver != nil {
		return btrfs.Quote(c.Argv) + " | " + btrfs.Quote(c.Receiver)
	}
	return btrfs.Quote(c.Argv)
}

// Runner records commands and optionally applies their effect on a real
// directory tree so the code under test sees consistent listings.
type Runner struct {
	mu    sync.Mutex
	calls []Call

	// Fail returns a non-nil exit code for a command; zero means success.
	Fail func(argv []string) int
	// FailPipe decides the exit codes of a send|receive pair.
	FailPipe func(send, recv []string) (sendCode, recvCode int)
	// Simulate makes subvolume and send|receive commands create and
	// remove plain directories.
	Simulate bool
	// OnReceive is called after a simulated receive with the new snapshot
	// directory, so tests can populate it.
	OnReceive func(dir string)
}

func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns every call as a shell line.
func (r *Runner) Lines() []string {
	var out []string
	for _, c := range r.Calls() {
		out = append(out, c.Line())
	}
	return out
}

func (r *Runner) Run(_ context.Context, cmd btrfs.Command) (btrfs.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Argv: append([]string(nil), cmd.Argv...)})
	r.mu.Unlock()

	res := btrfs.Result{Argv: cmd.Argv}
	if r.Fail != nil {
		if code := r.Fail(cmd.Argv); code != 0 {
			res.ExitCode = code
			res.Stderr = []byte("simulated failure")
			return res, &btrfs.ToolError{Result: res}
		}
	}
	if r.Simulate {
		if err := simulate(cmd.Argv); err != nil {
			res.ExitCode = 1
			res.Stderr = []byte(err.Error())
			return res, &btrfs.ToolError{Result: res, Err: err}
		}
	}
	return res, nil
}

func (r *Runner) Pipe(_ context.Context, first, second btrfs.Command) (btrfs.PipeResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{
		Argv:     append([]string(nil), first.Argv...),
		Receiver: append([]string(nil), second.Argv...),
	})
	r.mu.Unlock()

	pr := btrfs.PipeResult{
		Sender:   btrfs.Result{Argv: first.Argv},
		Receiver: btrfs.Result{Argv: second.Argv},
	}
	var sendErr, recvErr error
	if r.FailPipe != nil {
		sc, rc := r.FailPipe(first.Argv, second.Argv)
		if sc != 0 {
			pr.Sender.ExitCode = sc
			pr.Sender.Stderr = []byte("simulated send failure")
			sendErr = &btrfs.ToolError{Result: pr.Sender}
		}
		if rc != 0 {
			pr.Receiver.ExitCode = rc
			pr.Receiver.Stderr = []byte("simulated receive failure")
			recvErr = &btrfs.ToolError{Result: pr.Receiver}
		}
	}
	if sendErr == nil && recvErr == nil && r.Simulate {
		target := first.Argv[len(first.Argv)-1]
		dstDir := second.Argv[len(second.Argv)-1]
		dir := filepath.Join(dstDir, filepath.Base(target))
		if err := os.Mkdir(dir, 0o755); err != nil {
			recvErr = &btrfs.ToolError{Result: pr.Receiver, Err: err}
		} else if r.OnReceive != nil {
			r.OnReceive(dir)
		}
	}
	return pr, errors.Join(sendErr, recvErr)
}

func simulate(argv []string) error {
	if len(argv) < 3 || argv[1] != "subvolume" {
		return nil
	}
	switch argv[2] {
	case "create":
		return os.Mkdir(argv[len(argv)-1], 0o755)
	case "snapshot":
		return os.Mkdir(argv[len(argv)-1], 0o755)
	case "delete":
		for _, p := range argv[3:] {
			if strings.HasPrefix(p, "-") {
				continue
			}
			if err := os.RemoveAll(p); err != nil {
				return err
			}
		}
	}
	return nil
}
