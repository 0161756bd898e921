package geom

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Aabb is an axis-aligned bounding box.
type Aabb struct {
	min mgl64.Vec3
	max mgl64.Vec3
}

// NewAabb builds a box from any two opposite corners.
func NewAabb(a, b mgl64.Vec3) Aabb {
	return Aabb{
		min: mgl64.Vec3{math.Min(a.X(), b.X()), math.Min(a.Y(), b.Y()), math.Min(a.Z(), b.Z())},
		max: mgl64.Vec3{math.Max(a.X(), b.X()), math.Max(a.Y(), b.Y()), math.Max(a.Z(), b.Z())},
	}
}

// ZeroAabb returns the degenerate box at the origin.
func ZeroAabb() Aabb {
	return Aabb{}
}

func (a *Aabb) Min() mgl64.Vec3 { return a.min }
func (a *Aabb) Max() mgl64.Vec3 { return a.max }

// Grow extends the box to include p.
func (a *Aabb) Grow(p mgl64.Vec3) {
	a.min = mgl64.Vec3{math.Min(a.min.X(), p.X()), math.Min(a.min.Y(), p.Y()), math.Min(a.min.Z(), p.Z())}
	a.max = mgl64.Vec3{math.Max(a.max.X(), p.X()), math.Max(a.max.Y(), p.Y()), math.Max(a.max.Z(), p.Z())}
}

// Union extends the box to include the whole of other.
func (a *Aabb) Union(other *Aabb) {
	a.Grow(other.min)
	a.Grow(other.max)
}

func (a *Aabb) Center() mgl64.Vec3 {
	return a.min.Add(a.max).Mul(0.5)
}

func (a *Aabb) Diag() mgl64.Vec3 {
	return a.max.Sub(a.min)
}

// Contains reports whether p lies inside the box. The upper boundary is
// inclusive, matching the closed interval the meta descriptor stores.
func (a *Aabb) Contains(p mgl64.Vec3) bool {
	return a.min.X() <= p.X() && p.X() <= a.max.X() &&
		a.min.Y() <= p.Y() && p.Y() <= a.max.Y() &&
		a.min.Z() <= p.Z() && p.Z() <= a.max.Z()
}

// Corners returns the eight corners in (x-minor, y-mid, z-major) order.
func (a *Aabb) Corners() [8]mgl64.Vec3 {
	mn, mx := a.min, a.max
	return [8]mgl64.Vec3{
		{mn.X(), mn.Y(), mn.Z()},
		{mx.X(), mn.Y(), mn.Z()},
		{mn.X(), mx.Y(), mn.Z()},
		{mx.X(), mx.Y(), mn.Z()},
		{mn.X(), mn.Y(), mx.Z()},
		{mx.X(), mn.Y(), mx.Z()},
		{mn.X(), mx.Y(), mx.Z()},
		{mx.X(), mx.Y(), mx.Z()},
	}
}

// IntersectsAabb implements PointCulling using the world axes as the only
// separating-axis candidates, which is exact for two axis-aligned boxes.
func (a *Aabb) IntersectsAabb(other *Aabb) Relation {
	corners := a.Corners()
	return Sat(unitAxes[:], corners[:], other)
}

var unitAxes = [3]mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// AllPoints is the query volume that rejects nothing.
type AllPoints struct{}

func (AllPoints) Contains(mgl64.Vec3) bool { return true }
func (AllPoints) IntersectsAabb(*Aabb) Relation { return In }
