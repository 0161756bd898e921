package geom

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ClosedInterval is an inclusive numeric range, typically parsed from a
// command line argument and used to filter points by attribute value.
type ClosedInterval struct {
	Lo float64
	Hi float64
}

// NewClosedInterval builds an interval, swapping the bounds if needed.
func NewClosedInterval(lo, hi float64) ClosedInterval {
	if lo > hi {
		lo, hi = hi, lo
	}
	return ClosedInterval{Lo: lo, Hi: hi}
}

func (c ClosedInterval) Contains(v float64) bool {
	return c.Lo <= v && v <= c.Hi
}

// ParseClosedInterval parses "lo,hi".
func ParseClosedInterval(s string) (ClosedInterval, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return ClosedInterval{}, errors.Errorf("an interval needs exactly 2 bounds, got %q", s)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return ClosedInterval{}, errors.Wrap(err, "parsing interval lower bound")
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return ClosedInterval{}, errors.Wrap(err, "parsing interval upper bound")
	}
	if lo > hi {
		return ClosedInterval{}, errors.Errorf("interval lower bound %v exceeds upper bound %v", lo, hi)
	}
	return ClosedInterval{Lo: lo, Hi: hi}, nil
}
