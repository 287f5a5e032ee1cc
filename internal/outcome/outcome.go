// Package outcome classifies the result of a snapshot, replication or sweep
// step and maps it to the process exit status seen by cron.
package outcome

import (
	"errors"
	"fmt"
)

// Kind is the class of a step result.
type Kind int

const (
	OK Kind = iota
	AlreadyReplicated
	MissingSource
	MissingDestination
	ConfigError
	ExternalToolFailure
	VerificationMismatch
	SpaceAnomaly
	Internal
)

// Exit statuses. Each failure class gets its own code so calling automation
// can alert differently; ExitMixed is used when several classes failed.
const (
	ExitOK                 = 0
	ExitInternal           = 1
	ExitConfig             = 2
	ExitVerification       = 3
	ExitMissingSource      = 4
	ExitMissingDestination = 5
	ExitSpaceAnomaly       = 6
	ExitAlreadyReplicated  = 7
	ExitMixed              = 8
	ExitTool               = 10
)

var kindNames = map[Kind]string{
	OK:                   "ok",
	AlreadyReplicated:    "already-replicated",
	MissingSource:        "missing-source",
	MissingDestination:   "missing-destination",
	ConfigError:          "config-error",
	ExternalToolFailure:  "tool-failure",
	VerificationMismatch: "verification-mismatch",
	SpaceAnomaly:         "space-anomaly",
	Internal:             "internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode returns the process exit status for a single kind.
func (k Kind) ExitCode() int {
	switch k {
	case OK:
		return ExitOK
	case AlreadyReplicated:
		return ExitAlreadyReplicated
	case MissingSource:
		return ExitMissingSource
	case MissingDestination:
		return ExitMissingDestination
	case ConfigError:
		return ExitConfig
	case ExternalToolFailure:
		return ExitTool
	case VerificationMismatch:
		return ExitVerification
	case SpaceAnomaly:
		return ExitSpaceAnomaly
	default:
		return ExitInternal
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New builds a classified error.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else {
		msg += ": " + e.Kind.String()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode satisfies the exit coder interface used by the CLI.
func (e *Error) ExitCode() int { return e.Kind.ExitCode() }

// KindOf extracts the kind from err. A nil error is OK and an unclassified
// error is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return Internal
}

// Configf returns a ConfigError with a formatted message.
func Configf(format string, args ...any) *Error {
	return New(ConfigError, "config", "", fmt.Errorf(format, args...))
}
