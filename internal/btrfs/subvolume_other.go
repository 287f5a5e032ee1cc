//go:build !linux

package btrfs

import "errors"

func IsSubvolume(path string) (bool, error) {
	_ = path
	return false, errors.New("btrfs subvolumes are only supported on linux")
}
