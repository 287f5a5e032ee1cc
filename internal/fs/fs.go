// Package fs defines the filesystem abstraction used by btrsnap.
// It provides the FS interface, directory listing and free-space
// measurement shared by the snapshotter, replicator and sweeper.
package fs

import (
	"context"
	"time"
)

type FileInfo struct {
	Path  string
	Size  int64
	MTime time.Time
	IsDir bool
}

// Usage is a free-space reading for the filesystem holding a path.
type Usage struct {
	Total uint64 // bytes
	Free  uint64 // bytes available to unprivileged users
}

// FreePercent returns the free share of the filesystem in percent.
func (u Usage) FreePercent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Free) * 100.0 / float64(u.Total)
}

type FS interface {
	Stat(path string) (FileInfo, error)
	// ReadDirNames lists the entry names of a directory, unsorted.
	ReadDirNames(path string) ([]string, error)
	Rename(ctx context.Context, oldPath, newPath string) error
	MkdirAll(path string) error
	Usage(path string) (Usage, error)
}
