// Package inventory lists the snapshots found in a set of directories.
package inventory

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/raoulx24/btrsnap/internal/fs"
	"github.com/raoulx24/btrsnap/internal/snapshot"
)

// Entry is one snapshot of the inventory.
type Entry struct {
	Dir        string     `json:"dir" yaml:"dir"`
	Name       string     `json:"name" yaml:"name"`
	Good       bool       `json:"good" yaml:"good"`
	Protected  bool       `json:"protected" yaml:"protected"`
	Timestamp  *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	AgeSeconds int64      `json:"age_seconds,omitempty" yaml:"age_seconds,omitempty"`
}

// Status renders the snapshot state for humans.
func (e Entry) Status() string {
	switch {
	case e.Good:
		return "good"
	case e.Protected:
		return "protected"
	default:
		return "transient"
	}
}

// List reads every directory and returns its snapshots oldest first,
// directory by directory.
func List(filesystem fs.FS, naming snapshot.Naming, dirs []string, now time.Time) ([]Entry, error) {
	var out []Entry
	for _, dir := range dirs {
		names, err := filesystem.ReadDirNames(dir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		snaps := naming.ParseAll(dir, names)
		snapshot.Sort(snaps)
		for _, s := range snaps {
			e := Entry{
				Dir:       dir,
				Name:      s.Name,
				Good:      s.Good,
				Protected: !s.Good && naming.IsProtected(s.Name),
			}
			if s.Dated() {
				ts := s.Timestamp
				e.Timestamp = &ts
				e.AgeSeconds = int64(s.Age(now) / time.Second)
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// Formats accepted by Write.
var Formats = []string{"table", "json", "yaml"}

// Write renders entries in format.
func Write(w io.Writer, format string, entries []Entry, now time.Time) error {
	if entries == nil {
		entries = []Entry{}
	}
	switch strings.ToLower(format) {
	case "", "table":
		return writeTable(w, entries, now)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func writeTable(w io.Writer, entries []Entry, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTORY\tNAME\tSTATUS\tAGE")
	for _, e := range entries {
		age := "-"
		if e.Timestamp != nil {
			age = humanize.RelTime(*e.Timestamp, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Dir, e.Name, e.Status(), age)
	}
	return tw.Flush()
}
