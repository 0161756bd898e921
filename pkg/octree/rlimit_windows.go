//go:build windows

package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/pointgrid/pointgrid/pkg/elog"
)

// AttemptIncreasingRlimitToMax is a no-op on Windows, which has no rlimits.
func AttemptIncreasingRlimitToMax(view elog.View) {}
