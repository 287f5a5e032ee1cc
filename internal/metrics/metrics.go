// Package metrics exposes run statistics for node_exporter's textfile
// collector. Cron jobs do not live long enough to be scraped, so each run
// writes the registry to a file instead.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds btrsnap metrics only, without Go runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	SnapshotsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btrsnap_snapshots_created_total",
			Help: "Read-only snapshots created by the snapshotter",
		},
		[]string{"pair"},
	)

	SnapshotsDeleted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btrsnap_snapshots_deleted_total",
			Help: "Snapshots deleted, by reason (prune, incomplete, transient, space)",
		},
		[]string{"reason"},
	)

	Replications = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btrsnap_replications_total",
			Help: "Replication attempts by outcome",
		},
		[]string{"pair", "outcome"},
	)

	ReplicationBases = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btrsnap_replication_common_bases",
			Help: "Common bases offered to the last incremental send",
		},
		[]string{"pair"},
	)

	FreePercent = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btrsnap_free_percent",
			Help: "Last free-space reading of a sweep root",
		},
		[]string{"root"},
	)

	RunDuration = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btrsnap_run_duration_seconds",
			Help: "Duration of the last run of a command",
		},
		[]string{"command"},
	)

	LastRun = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btrsnap_last_run_timestamp_seconds",
			Help: "Unix time the last run of a command finished",
		},
		[]string{"command", "status"},
	)
)

// RecordDeleted counts n deletions for reason.
func RecordDeleted(reason string, n int) {
	if n > 0 {
		SnapshotsDeleted.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordRun stores duration and completion time of a command.
func RecordRun(command string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	RunDuration.WithLabelValues(command).Set(time.Since(started).Seconds())
	LastRun.WithLabelValues(command, status).SetToCurrentTime()
}

// WriteTextfile writes the registry atomically to path. An empty path is a
// no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
