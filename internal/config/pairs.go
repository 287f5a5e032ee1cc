package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Resolve fills Source and Destination from the directory form and reports
// a pair that still lacks either.
func (p Pair) Resolve() (Pair, error) {
	if p.Source == "" && p.SourceDirectory != "" {
		p.Source = filepath.Join(p.SourceDirectory, p.Name)
	}
	if p.Destination == "" && p.DestinationDirectory != "" {
		p.Destination = filepath.Join(p.DestinationDirectory, p.Name)
	}
	if p.Source == "" {
		return p, fmt.Errorf("pair %q: no source", p.Name)
	}
	if p.Destination == "" {
		return p, fmt.Errorf("pair %q: no destination", p.Name)
	}
	if p.Name == "" {
		p.Name = filepath.Base(p.Source)
	}
	return p, nil
}

// KeepOr returns the per-pair keep count or def.
func (p Pair) KeepOr(def int) int {
	if p.Keep != nil {
		return *p.Keep
	}
	return def
}

// ResolvePairs resolves every pair, failing on the first bad one.
func ResolvePairs(pairs []Pair) ([]Pair, error) {
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		r, err := p.Resolve()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ArgPairs builds pairs from positional arguments: "SRC DST", or with
// directories set "SRC_DIR... DST_DIR" where every entry of each SRC_DIR is
// paired with the same name under DST_DIR.
func ArgPairs(args []string, directories bool) ([]Pair, error) {
	if !directories {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected SOURCE DESTINATION, got %d arguments", len(args))
		}
		return ResolvePairs([]Pair{{Source: args[0], Destination: args[1]}})
	}

	if len(args) < 2 {
		return nil, fmt.Errorf("expected SOURCE_DIR... DESTINATION_DIR, got %d arguments", len(args))
	}
	dst := args[len(args)-1]

	var pairs []Pair
	for _, srcDir := range args[:len(args)-1] {
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", srcDir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			pairs = append(pairs, Pair{
				Name:        name,
				Source:      filepath.Join(srcDir, name),
				Destination: filepath.Join(dst, name),
			})
		}
	}
	return pairs, nil
}
