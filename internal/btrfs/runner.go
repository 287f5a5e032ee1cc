package btrfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// Runner executes external commands.
type Runner interface {
	// Run executes cmd and waits for it. A non-zero exit yields *ToolError.
	Run(ctx context.Context, cmd Command) (Result, error)
	// Pipe connects the stdout of first to the stdin of second and waits
	// for both. Failures of either side are reported together.
	Pipe(ctx context.Context, first, second Command) (PipeResult, error)
}

// PipeResult holds both ends of a pipe.
type PipeResult struct {
	Sender   Result
	Receiver Result
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (ExecRunner) command(ctx context.Context, c Command) (*exec.Cmd, error) {
	if len(c.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	return cmd, nil
}

func (r ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	res := Result{Argv: c.Argv, ExitCode: -1}

	cmd, err := r.command(ctx, c)
	if err != nil {
		return res, &ToolError{Result: res, Err: err}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return finish(cmd, res, &stdout, &stderr, err)
}

func (r ExecRunner) Pipe(ctx context.Context, first, second Command) (PipeResult, error) {
	pr := PipeResult{
		Sender:   Result{Argv: first.Argv, ExitCode: -1},
		Receiver: Result{Argv: second.Argv, ExitCode: -1},
	}

	sender, err := r.command(ctx, first)
	if err != nil {
		return pr, &ToolError{Result: pr.Sender, Err: err}
	}
	receiver, err := r.command(ctx, second)
	if err != nil {
		return pr, &ToolError{Result: pr.Receiver, Err: err}
	}

	rd, wr, err := os.Pipe()
	if err != nil {
		return pr, fmt.Errorf("creating pipe: %w", err)
	}

	var sendErr, recvOut, recvErr bytes.Buffer
	sender.Stdout = wr
	sender.Stderr = &sendErr
	receiver.Stdin = rd
	receiver.Stdout = &recvOut
	receiver.Stderr = &recvErr

	if err := sender.Start(); err != nil {
		rd.Close()
		wr.Close()
		return pr, &ToolError{Result: pr.Sender, Err: err}
	}
	if err := receiver.Start(); err != nil {
		rd.Close()
		wr.Close()
		_ = sender.Process.Kill()
		_ = sender.Wait()
		return pr, &ToolError{Result: pr.Receiver, Err: err}
	}

	// Only the children may hold the pipe ends; otherwise a dead receiver
	// would leave the sender blocked on a pipe we still keep open.
	rd.Close()
	wr.Close()

	var (
		g               errgroup.Group
		senderFailure   error
		receiverFailure error
	)
	g.Go(func() error {
		pr.Sender, senderFailure = finish(sender, pr.Sender, nil, &sendErr, sender.Wait())
		return nil
	})
	g.Go(func() error {
		pr.Receiver, receiverFailure = finish(receiver, pr.Receiver, &recvOut, &recvErr, receiver.Wait())
		return nil
	})
	_ = g.Wait()

	return pr, errors.Join(senderFailure, receiverFailure)
}

func finish(cmd *exec.Cmd, res Result, stdout, stderr *bytes.Buffer, runErr error) (Result, error) {
	if stdout != nil {
		res.Stdout = stdout.Bytes()
	}
	if stderr != nil {
		res.Stderr = stderr.Bytes()
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil {
		return res, &ToolError{Result: res, Err: runErr}
	}
	return res, nil
}
