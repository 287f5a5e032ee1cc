//go:build !linux

package fs

import (
	"errors"
)

// btrfs only exists on Linux; other platforms build for development only.

func diskUsage(path string) (Usage, error) {
	_ = path
	return Usage{}, errors.New("free-space measurement not supported on this platform")
}
