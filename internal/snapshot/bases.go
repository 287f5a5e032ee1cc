package snapshot

import "sort"

// CommonBases returns the names present in both sets, sorted. The result
// does not depend on input order or duplicates.
func CommonBases(source, destination []string) []string {
	dst := make(map[string]struct{}, len(destination))
	for _, name := range destination {
		dst[name] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, name := range source {
		if _, ok := dst[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Names returns the base names of snaps.
func Names(snaps []Snapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Base)
	}
	return out
}
