//go:build linux

package fs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// diskUsage reads statfs for path. Free counts blocks available to
// unprivileged users, matching what df reports as available.

func diskUsage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	bsize := uint64(st.Bsize)
	return Usage{
		Total: uint64(st.Blocks) * bsize,
		Free:  uint64(st.Bavail) * bsize,
	}, nil
}
