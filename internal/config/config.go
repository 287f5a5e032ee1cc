package config

import "time"

type Config struct {
	// GoodSuffix marks a destination snapshot as completely received.
	GoodSuffix   string          `yaml:"goodSuffix"`
	Btrfs        BtrfsConfig     `yaml:"btrfs"`
	Snapshot     SnapshotConfig  `yaml:"snapshot"`
	Replicate    ReplicateConfig `yaml:"replicate"`
	Sweep        SweepConfig     `yaml:"sweep"`
	Schedule     ScheduleConfig  `yaml:"schedule"`
	Metrics      MetricsConfig   `yaml:"metrics"`
	Logging      LoggingConfig   `yaml:"logging"`
	ConfigReload ReloadConfig    `yaml:"configReload"`
}

type BtrfsConfig struct {
	Binary          string        `yaml:"binary"`
	DryRun          bool          `yaml:"dryRun"`
	TransferTimeout time.Duration `yaml:"transferTimeout"` // 0 = unlimited
}

// Pair maps a source to a destination. For the snapshotter the source is a
// live subvolume and the destination the snapshot directory; for the
// replicator both are snapshot directories.
type Pair struct {
	Name        string `yaml:"name"`
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	// SourceDirectory and DestinationDirectory are joined with Name when
	// Source or Destination are not given.
	SourceDirectory      string `yaml:"sourceDirectory"`
	DestinationDirectory string `yaml:"destinationDirectory"`
	Keep                 *int   `yaml:"keep"`
}

type SnapshotConfig struct {
	Keep           int    `yaml:"keep"`      // < 1 disables pruning
	Protected      string `yaml:"protected"` // characters that shield a snapshot from pruning
	KeepGoing      bool   `yaml:"keepGoing"`
	CheckSubvolume bool   `yaml:"checkSubvolume"`
	Volumes        []Pair `yaml:"volumes"`
	// Timestamp overrides the generated snapshot name; command line only.
	Timestamp string `yaml:"-"`
}

type ReplicateConfig struct {
	Compare           bool   `yaml:"compare"`
	AlreadyOK         bool   `yaml:"alreadyOk"`
	PartialOK         bool   `yaml:"partialOk"`
	MissingOK         bool   `yaml:"missingOk"`
	CreateDestination bool   `yaml:"createDestination"`
	CleanIncomplete   bool   `yaml:"cleanIncomplete"`
	KeepGoing         bool   `yaml:"keepGoing"`
	Pairs             []Pair `yaml:"pairs"`
}

type SweepConfig struct {
	Roots          []string      `yaml:"roots"`
	Keep           int           `yaml:"keep"`
	MinFreePercent float64       `yaml:"minFreePercent"`
	TransientAge   time.Duration `yaml:"transientAge"`
	DeleteDelay    time.Duration `yaml:"deleteDelay"`
	StatDelay      time.Duration `yaml:"statDelay"`
	SkipMissing    bool          `yaml:"skipMissing"`
	Commit         string        `yaml:"commit"`
}

// ScheduleConfig holds cron expressions for daemon mode; empty disables a job.
type ScheduleConfig struct {
	Snapshot  string `yaml:"snapshot"`
	Replicate string `yaml:"replicate"`
	Sweep     string `yaml:"sweep"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node_exporter textfile path
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "info", "debug", etc.
	Format string `yaml:"format"` // "json", "console"
}

type ReloadConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Method       string        `yaml:"method"` // "auto", "fsnotify", "poll"
	PollInterval time.Duration `yaml:"pollInterval"`
	Debounce     time.Duration `yaml:"debounce"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		GoodSuffix: ".good",
		Btrfs: BtrfsConfig{
			Binary: "btrfs",
		},
		Snapshot: SnapshotConfig{
			Keep:      -1,
			Protected: "~#@.",
			KeepGoing: true,
		},
		Replicate: ReplicateConfig{
			CreateDestination: true,
			CleanIncomplete:   true,
		},
		Sweep: SweepConfig{
			Keep:           1,
			MinFreePercent: 10,
			TransientAge:   24 * time.Hour,
			DeleteDelay:    60 * time.Second,
			StatDelay:      2 * time.Second,
			Commit:         "--commit-each",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		ConfigReload: ReloadConfig{
			Enabled:      true,
			Method:       "auto",
			PollInterval: 30 * time.Second,
			Debounce:     500 * time.Millisecond,
		},
	}
}
