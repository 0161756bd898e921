package geom

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Sat runs the separating-axis test between a convex corner set and an
// axis-aligned box. If the projections onto any candidate axis are disjoint
// the volumes are separated and the result is Out, otherwise Cross.
// See https://gamedev.stackexchange.com/questions/44500 for the axis choice.
func Sat(axes []mgl64.Vec3, corners []mgl64.Vec3, aabb *Aabb) Relation {
	boxCorners := aabb.Corners()
	for _, axis := range axes {
		boxMin, boxMax := projectOnto(axis, boxCorners[:])
		otherMin, otherMax := projectOnto(axis, corners)
		if otherMin > boxMax || otherMax < boxMin {
			return Out
		}
	}
	return Cross
}

func projectOnto(axis mgl64.Vec3, corners []mgl64.Vec3) (min, max float64) {
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, c := range corners {
		p := c.Dot(axis)
		min = math.Min(min, p)
		max = math.Max(max, p)
	}
	return min, max
}

// isFinite guards against separating axes degenerating to NaN, which happens
// when a cross product of parallel vectors is normalized.
func isFinite(v mgl64.Vec3) bool {
	return !math.IsNaN(v.X()) && !math.IsInf(v.X(), 0) &&
		!math.IsNaN(v.Y()) && !math.IsInf(v.Y(), 0) &&
		!math.IsNaN(v.Z()) && !math.IsInf(v.Z(), 0)
}

// appendSeparatingAxis adds axis to axes unless it is degenerate or parallel
// (up to epsilon) to an axis already present.
func appendSeparatingAxis(axes []mgl64.Vec3, axis mgl64.Vec3) []mgl64.Vec3 {
	if !isFinite(axis) {
		return axes
	}
	const eps = 1e-10
	for _, a := range axes {
		if a.Sub(axis).Len() <= eps || a.Add(axis).Len() <= eps {
			return axes
		}
	}
	return append(axes, axis)
}
