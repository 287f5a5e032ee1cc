// Package btrfs runs the btrfs command line tool. Core logic depends only
// on the Runner interface so it can be exercised without a btrfs volume.
package btrfs

import (
	"fmt"
	"regexp"
	"strings"
)

// Command is one external process invocation.
type Command struct {
	Argv []string
	Dir  string
}

// String renders the command shell-quoted, for logs.
func (c Command) String() string {
	return Quote(c.Argv)
}

// Result is what an external process left behind.
type Result struct {
	Argv     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Output returns the captured stderr, or stdout when stderr is empty,
// trimmed for single-line logging.
func (r Result) Output() string {
	out := strings.TrimSpace(string(r.Stderr))
	if out == "" {
		out = strings.TrimSpace(string(r.Stdout))
	}
	return out
}

// ToolError reports a process that could not start or exited non-zero.
type ToolError struct {
	Result Result
	Err    error // start or wait error, if any
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed (%d)", Quote(e.Result.Argv), e.Result.ExitCode)
	if out := e.Result.Output(); out != "" {
		msg += ": " + out
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

var safeWord = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

// Quote joins argv the way a POSIX shell would need it typed.
func Quote(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, a := range argv {
		switch {
		case a == "":
			parts = append(parts, "''")
		case safeWord.MatchString(a):
			parts = append(parts, a)
		default:
			parts = append(parts, "'"+strings.ReplaceAll(a, "'", `'"'"'`)+"'")
		}
	}
	return strings.Join(parts, " ")
}
