package geom

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Relation is the spatial relation between a query volume and a box.
type Relation int

const (
	// In means the box is completely inside the query volume.
	In Relation = iota
	// Cross means the box crosses the query volume's boundary.
	Cross
	// Out means the box is completely outside the query volume.
	Out
)

func (r Relation) String() string {
	switch r {
	case In:
		return "in"
	case Cross:
		return "cross"
	case Out:
		return "out"
	}
	return "unknown"
}

// PointCulling is the capability set every query volume implements: per-point
// rejection and node cube pruning.
type PointCulling interface {
	Contains(p mgl64.Vec3) bool
	IntersectsAabb(aabb *Aabb) Relation
}

// Clamp returns v limited to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
