// Package config loads btrsnap configuration from YAML or from the
// sectioned INI files of the older cron scripts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config is given.
const DefaultPath = "/etc/local/btrfs-snapshots"

// PathEnvVar overrides DefaultPath.
const PathEnvVar = "BTRSNAP_CONFIG"

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := mapEnvKey(envPattern.FindStringSubmatch(m)[1])
		return os.Getenv(key)
	})
}

// IsYAML reports whether path is read as YAML rather than INI.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Role selects the part of the configuration a sectioned INI file fills.
// An INI file describes one tool: its sections are either live volumes to
// snapshot or snapshot directories to replicate, never both.
type Role int

const (
	// RoleNone rejects INI files; only YAML can configure the command.
	RoleNone Role = iota
	RoleSnapshot
	RoleReplicate
)

// Load reads path on top of Default(). role decides where the sections of
// an INI file go; YAML files carry every section themselves.
func Load(path string, role Role) (*Config, error) {
	// read raw file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// expand $(ENV_VAR) placeholders
	expanded := []byte(expandEnvVars(string(data)))

	cfg := Default()
	if IsYAML(path) {
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("unmarshalling yaml: %w", err)
		}
		return cfg, nil
	}

	pairs, err := parseINI(expanded)
	if err != nil {
		return nil, fmt.Errorf("parsing ini: %w", err)
	}
	switch role {
	case RoleSnapshot:
		cfg.Snapshot.Volumes = pairs
	case RoleReplicate:
		cfg.Replicate.Pairs = pairs
	default:
		return nil, fmt.Errorf("%s: INI files only configure the snapshot and replicate commands, use YAML", path)
	}
	return cfg, nil
}

// parseINI reads one pair per section. Keys missing from a section are
// inherited from [DEFAULT].
func parseINI(data []byte) ([]Pair, error) {
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, data)
	if err != nil {
		return nil, err
	}

	defaults := f.Section(ini.DefaultSection)
	lookup := func(sec *ini.Section, key string) (string, bool) {
		if sec.HasKey(key) {
			return sec.Key(key).String(), true
		}
		if defaults.HasKey(key) {
			return defaults.Key(key).String(), true
		}
		return "", false
	}

	var pairs []Pair
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}

		p := Pair{Name: sec.Name()}
		p.Source, _ = lookup(sec, "source")
		p.Destination, _ = lookup(sec, "destination")
		p.SourceDirectory, _ = lookup(sec, "sourcedirectory")
		p.DestinationDirectory, _ = lookup(sec, "destinationdirectory")
		if v, ok := lookup(sec, "keep"); ok {
			keep, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("section %s: keep %q is not an integer", sec.Name(), v)
			}
			p.Keep = &keep
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}
