package outcome

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Policy decides which non-success outcomes still count as success.
type Policy struct {
	AlreadyOK bool // already replicated counts as success
	PartialOK bool // missing destination counts as success
	MissingOK bool // empty or missing source counts as success
}

// Tolerated reports whether kind counts as success under p.
func (p Policy) Tolerated(kind Kind) bool {
	switch kind {
	case OK:
		return true
	case AlreadyReplicated:
		return p.AlreadyOK
	case MissingDestination:
		return p.PartialOK
	case MissingSource:
		return p.MissingOK
	default:
		return false
	}
}

// Entry is the result of one unit of work (a pair or a sweep root).
type Entry struct {
	Name string
	Kind Kind
	Err  error
}

// Report accumulates entries for a whole run.
type Report struct {
	policy  Policy
	entries []Entry
}

// NewReport returns an empty report judged by policy.
func NewReport(policy Policy) *Report {
	return &Report{policy: policy}
}

// Add records the result of one unit. The kind is taken from err.
func (r *Report) Add(name string, err error) Kind {
	kind := KindOf(err)
	r.entries = append(r.entries, Entry{Name: name, Kind: kind, Err: err})
	return kind
}

func (r *Report) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Failed returns the entries not tolerated by the policy.
func (r *Report) Failed() []Entry {
	var out []Entry
	for _, e := range r.entries {
		if !r.policy.Tolerated(e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many entries have kind.
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, e := range r.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Err returns nil when every entry is tolerated. Otherwise it returns a
// RunError whose exit code is the code of the single failing kind, or
// ExitMixed when failures of different kinds occurred.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &RunError{Failed: failed}
}

// RunError summarises the failed entries of a run.
type RunError struct {
	Failed []Entry
}

func (e *RunError) kinds() []Kind {
	seen := map[Kind]bool{}
	var out []Kind
	for _, f := range e.Failed {
		if !seen[f.Kind] {
			seen[f.Kind] = true
			out = append(out, f.Kind)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *RunError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %v", f.Name, f.Err))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Kind))
		}
	}
	return fmt.Sprintf("%d failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

// ExitCode is deterministic: one failing kind maps to its own code, several
// kinds map to ExitMixed.
func (e *RunError) ExitCode() int {
	kinds := e.kinds()
	switch len(kinds) {
	case 0:
		return ExitOK
	case 1:
		return kinds[0].ExitCode()
	default:
		return ExitMixed
	}
}

// ExitCode maps any error returned by a run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var re *RunError
	if errors.As(err, &re) {
		return re.ExitCode()
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.ExitCode()
	}
	type exitCoder interface{ ExitCode() int }
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return ExitInternal
}
