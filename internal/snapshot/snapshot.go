// Package snapshot holds the naming conventions shared by the snapshotter,
// the replicator and the retention sweeper. Names stay sortable strings on
// disk; inside the program they are parsed into timestamps.
package snapshot

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Snapshot represents a single subvolume inside a snapshot directory.
type Snapshot struct {
	Name      string    // entry name on disk, suffix included
	Base      string    // name with the good suffix removed
	Dir       string    // directory holding the snapshot
	Good      bool      // carries the good marker
	Timestamp time.Time // zero when Base is not a timestamp
}

// Path returns the full path of the snapshot.
func (s Snapshot) Path() string {
	return filepath.Join(s.Dir, s.Name)
}

// Dated reports whether the name parsed as a timestamp.
func (s Snapshot) Dated() bool {
	return !s.Timestamp.IsZero()
}

// Age returns how old the snapshot is at now. Undated snapshots have age 0.
func (s Snapshot) Age(now time.Time) time.Duration {
	if !s.Dated() {
		return 0
	}
	return now.Sub(s.Timestamp)
}

// Naming describes how snapshot names are decorated.
type Naming struct {
	GoodSuffix string
	// Protected lists characters that mark a hand-made snapshot the
	// snapshotter must never prune.
	Protected string
}

// DefaultNaming returns the conventional suffix and protected characters.
func DefaultNaming() Naming {
	return Naming{GoodSuffix: ".good", Protected: "~#@."}
}

// Parse builds a Snapshot from a directory entry name.
func (n Naming) Parse(dir, name string) Snapshot {
	s := Snapshot{Name: name, Base: name, Dir: dir}
	if n.GoodSuffix != "" && strings.HasSuffix(name, n.GoodSuffix) && len(name) > len(n.GoodSuffix) {
		s.Good = true
		s.Base = strings.TrimSuffix(name, n.GoodSuffix)
	}
	if t, err := ParseTimestamp(s.Base); err == nil {
		s.Timestamp = t
	}
	return s
}

// ParseAll parses every name found in dir.
func (n Naming) ParseAll(dir string, names []string) []Snapshot {
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, n.Parse(dir, name))
	}
	return out
}

// GoodName returns the name a snapshot gets once marked good.
func (n Naming) GoodName(base string) string {
	return base + n.GoodSuffix
}

// IsProtected reports whether name contains a protected character.
func (n Naming) IsProtected(name string) bool {
	return strings.ContainsAny(name, n.Protected)
}

// Less orders snapshots oldest first. Dated snapshots come before undated
// ones and are ordered by instant; ties and undated snapshots fall back to
// the name, which is the on-disk creation order.
func Less(a, b Snapshot) bool {
	if a.Dated() != b.Dated() {
		return a.Dated()
	}
	if a.Dated() && !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.Base != b.Base {
		return a.Base < b.Base
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Dir < b.Dir
}

// Sort orders snaps oldest first in place.
func Sort(snaps []Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool { return Less(snaps[i], snaps[j]) })
}

// Latest returns the most recent snapshot.
func Latest(snaps []Snapshot) (Snapshot, bool) {
	if len(snaps) == 0 {
		return Snapshot{}, false
	}
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if Less(latest, s) {
			latest = s
		}
	}
	return latest, true
}

// Filter returns the snapshots for which keep returns true.
func Filter(snaps []Snapshot, keep func(Snapshot) bool) []Snapshot {
	var out []Snapshot
	for _, s := range snaps {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// Excess returns the snapshots beyond the newest keep, oldest first.
// keep <= 0 protects nothing.
func Excess(snaps []Snapshot, keep int) []Snapshot {
	sorted := append([]Snapshot(nil), snaps...)
	Sort(sorted)
	if keep <= 0 {
		return sorted
	}
	if len(sorted) <= keep {
		return nil
	}
	return sorted[:len(sorted)-keep]
}
