// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ondevice

import "golang.org/x/sys/unix"

// freeDiskBytes returns the bytes available to unprivileged users on
// the filesystem holding path.
func freeDiskBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
