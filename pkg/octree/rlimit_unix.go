//go:build !windows

package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"golang.org/x/sys/unix"

	"github.com/pointgrid/pointgrid/pkg/elog"
)

// AttemptIncreasingRlimitToMax raises the open-file soft limit to its hard
// limit. Best effort: a build holds many node writers at once, but failing to
// raise the limit is only worth a warning.
func AttemptIncreasingRlimitToMax(view elog.View) {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		view.Warnf("could not read the open-file limit: %v", err)
		return
	}
	if limit.Cur >= limit.Max {
		return
	}
	limit.Cur = limit.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		view.Warnf("could not raise the open-file limit to %d: %v", limit.Max, err)
	}
}
