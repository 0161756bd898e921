package geom

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// Frustum is a view frustum defined by its clip-from-world matrix. It is
// defined in eye coordinates where x points right, y points up and z points
// against the viewing direction. To get from an OpenCV-style camera frame to
// eye coordinates, rotate 180 degrees around the x axis first.
type Frustum struct {
	clipFromWorld mgl64.Mat4
	worldFromClip mgl64.Mat4
}

// FrustumFromMatrix builds a frustum from a clip-from-world matrix. Fails if
// the matrix is not invertible.
func FrustumFromMatrix(clipFromWorld mgl64.Mat4) (*Frustum, error) {
	if clipFromWorld.Det() == 0 {
		return nil, errors.New("clip-from-world matrix is not invertible")
	}
	return &Frustum{
		clipFromWorld: clipFromWorld,
		worldFromClip: clipFromWorld.Inv(),
	}, nil
}

// NewPerspectiveFrustum builds a frustum from a world-from-eye pose and a
// perspective projection.
func NewPerspectiveFrustum(worldFromEye mgl64.Mat4, left, right, bottom, top, near, far float64) (*Frustum, error) {
	clipFromEye := mgl64.Frustum(left, right, bottom, top, near, far)
	return FrustumFromMatrix(clipFromEye.Mul4(worldFromEye.Inv()))
}

// ClipFromWorld returns the defining matrix.
func (f *Frustum) ClipFromWorld() mgl64.Mat4 { return f.clipFromWorld }

// Contains implements PointCulling: the point's clip-space image must lie
// strictly inside the unit cube.
func (f *Frustum) Contains(p mgl64.Vec3) bool {
	clip := mgl64.TransformCoordinate(p, f.clipFromWorld)
	return clip.X() > -1 && clip.X() < 1 &&
		clip.Y() > -1 && clip.Y() < 1 &&
		clip.Z() > -1 && clip.Z() < 1
}

// planes returns the six clip planes of the frustum as (normal, offset)
// rows; a point is inside a plane when normal.p + offset > 0.
func (f *Frustum) planes() [6]mgl64.Vec4 {
	m := f.clipFromWorld
	r0, r1, r2, r3 := m.Row(0), m.Row(1), m.Row(2), m.Row(3)
	return [6]mgl64.Vec4{
		r3.Add(r0), // left
		r3.Sub(r0), // right
		r3.Add(r1), // bottom
		r3.Sub(r1), // top
		r3.Add(r2), // near
		r3.Sub(r2), // far
	}
}

// IntersectsAabb classifies the box against the six clip planes: a box with
// all corners behind one plane is Out, one with all corners inside every
// plane is In, anything else Cross. The missing cross-product axes make the
// Out test conservative, which only costs pruning, never correctness.
func (f *Frustum) IntersectsAabb(aabb *Aabb) Relation {
	corners := aabb.Corners()
	allInside := true
	for _, plane := range f.planes() {
		outside := 0
		for _, corner := range corners {
			d := plane.X()*corner.X() + plane.Y()*corner.Y() + plane.Z()*corner.Z() + plane.W()
			if d <= 0 {
				outside++
			}
		}
		if outside == len(corners) {
			return Out
		}
		if outside > 0 {
			allInside = false
		}
	}
	if allInside {
		return In
	}
	return Cross
}

// Corners returns the world-space frustum corners, the images of the clip
// cube corners under the inverse matrix.
func (f *Frustum) Corners() [8]mgl64.Vec3 {
	var corners [8]mgl64.Vec3
	for i, c := range [8][3]float64{
		{-1, -1, -1}, {-1, -1, 1}, {-1, 1, -1}, {-1, 1, 1},
		{1, -1, -1}, {1, -1, 1}, {1, 1, -1}, {1, 1, 1},
	} {
		corners[i] = mgl64.TransformCoordinate(mgl64.Vec3{c[0], c[1], c[2]}, f.worldFromClip)
	}
	return corners
}

// Edges returns the six distinct edge directions: near-plane x and y, and the
// four slanted side edges.
func (f *Frustum) Edges() []mgl64.Vec3 {
	corners := f.Corners()
	return []mgl64.Vec3{
		corners[4].Sub(corners[0]).Normalize(),
		corners[2].Sub(corners[0]).Normalize(),
		corners[1].Sub(corners[0]).Normalize(),
		corners[3].Sub(corners[2]).Normalize(),
		corners[5].Sub(corners[4]).Normalize(),
		corners[7].Sub(corners[6]).Normalize(),
	}
}
