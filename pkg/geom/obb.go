package geom

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Obb is an oriented bounding box: a rotation and translation applied to a box
// of the given half extents centered at the origin. Corners and separating
// axes are precomputed, queries against node cubes only project corners.
type Obb struct {
	rotation       mgl64.Quat
	invRotation    mgl64.Quat
	translation    mgl64.Vec3
	halfExtent     mgl64.Vec3
	corners        [8]mgl64.Vec3
	separatingAxes []mgl64.Vec3
}

// NewObb builds an oriented box from the world-from-box rotation and
// translation and the box half extents.
func NewObb(rotation mgl64.Quat, translation, halfExtent mgl64.Vec3) *Obb {
	o := &Obb{
		rotation:    rotation,
		invRotation: rotation.Inverse(),
		translation: translation,
		halfExtent:  halfExtent,
	}
	o.corners = o.computeCorners()
	o.separatingAxes = computeSeparatingAxes(rotation)
	return o
}

// ObbFromAabb wraps an axis-aligned box in the identity orientation.
func ObbFromAabb(aabb *Aabb) *Obb {
	return NewObb(mgl64.QuatIdent(), aabb.Center(), aabb.Max().Sub(aabb.Center()))
}

func (o *Obb) HalfExtent() mgl64.Vec3 { return o.halfExtent }

// Corners returns the precomputed world-space corners.
func (o *Obb) Corners() [8]mgl64.Vec3 { return o.corners }

func (o *Obb) computeCorners() [8]mgl64.Vec3 {
	h := o.halfExtent
	var corners [8]mgl64.Vec3
	for i, signs := range [8][3]float64{
		{-1, -1, -1}, {1, -1, -1}, {-1, 1, -1}, {1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {-1, 1, 1}, {1, 1, 1},
	} {
		local := mgl64.Vec3{signs[0] * h.X(), signs[1] * h.Y(), signs[2] * h.Z()}
		corners[i] = o.rotation.Rotate(local).Add(o.translation)
	}
	return corners
}

// computeSeparatingAxes gathers the SAT candidates for box-vs-cube tests: the
// world axes, the rotated box axes, and the pairwise cross products, with
// parallel and degenerate candidates dropped.
func computeSeparatingAxes(rotation mgl64.Quat) []mgl64.Vec3 {
	unitX := mgl64.Vec3{1, 0, 0}
	unitY := mgl64.Vec3{0, 1, 0}
	unitZ := mgl64.Vec3{0, 0, 1}
	rotX := rotation.Rotate(unitX)
	rotY := rotation.Rotate(unitY)
	rotZ := rotation.Rotate(unitZ)
	axes := []mgl64.Vec3{unitX, unitY, unitZ}
	for _, axis := range []mgl64.Vec3{
		rotX, rotY, rotZ,
		unitX.Cross(rotX).Normalize(),
		unitX.Cross(rotY).Normalize(),
		unitX.Cross(rotZ).Normalize(),
		unitY.Cross(rotX).Normalize(),
		unitY.Cross(rotY).Normalize(),
		unitY.Cross(rotZ).Normalize(),
		unitZ.Cross(rotX).Normalize(),
		unitZ.Cross(rotY).Normalize(),
		unitZ.Cross(rotZ).Normalize(),
	} {
		axes = appendSeparatingAxis(axes, axis)
	}
	return axes
}

// Contains implements PointCulling by transforming p into box coordinates.
func (o *Obb) Contains(p mgl64.Vec3) bool {
	local := o.invRotation.Rotate(p.Sub(o.translation))
	return math.Abs(local.X()) <= o.halfExtent.X() &&
		math.Abs(local.Y()) <= o.halfExtent.Y() &&
		math.Abs(local.Z()) <= o.halfExtent.Z()
}

// IntersectsAabb implements PointCulling via SAT over the precomputed axes.
func (o *Obb) IntersectsAabb(aabb *Aabb) Relation {
	return Sat(o.separatingAxes, o.corners[:], aabb)
}
