//go:build linux

package btrfs

import (
	"fmt"

	ioctl "github.com/dennwc/btrfs"
)

// IsSubvolume asks the kernel whether path is the root of a btrfs subvolume.
func IsSubvolume(path string) (bool, error) {
	ok, err := ioctl.IsSubVolume(path)
	if err != nil {
		return false, fmt.Errorf("checking subvolume %s: %w", path, err)
	}
	return ok, nil
}
