package geom

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Cube is an axis-aligned cube, the bounding volume of an octree node.
type Cube struct {
	min        mgl64.Vec3
	edgeLength float64
}

// NewCube builds a cube from its minimum corner and edge length.
func NewCube(min mgl64.Vec3, edgeLength float64) Cube {
	return Cube{min: min, edgeLength: edgeLength}
}

// BoundingCube returns the smallest cube sharing aabb's minimum corner that
// contains the whole box.
func BoundingCube(aabb *Aabb) Cube {
	d := aabb.Diag()
	edge := math.Max(d.X(), math.Max(d.Y(), d.Z()))
	return Cube{min: aabb.Min(), edgeLength: edge}
}

func (c *Cube) Min() mgl64.Vec3 { return c.min }
func (c *Cube) EdgeLength() float64 { return c.edgeLength }

func (c *Cube) Max() mgl64.Vec3 {
	return mgl64.Vec3{c.min.X() + c.edgeLength, c.min.Y() + c.edgeLength, c.min.Z() + c.edgeLength}
}

func (c *Cube) Center() mgl64.Vec3 {
	h := c.edgeLength / 2
	return mgl64.Vec3{c.min.X() + h, c.min.Y() + h, c.min.Z() + h}
}

func (c *Cube) ToAabb() Aabb {
	return NewAabb(c.Min(), c.Max())
}

// Child returns the sub-cube for the child index bit pattern (x_hi, y_hi, z_hi).
func (c *Cube) Child(index int) Cube {
	h := c.edgeLength / 2
	min := c.min
	if index&0b001 != 0 {
		min[2] += h
	}
	if index&0b010 != 0 {
		min[1] += h
	}
	if index&0b100 != 0 {
		min[0] += h
	}
	return Cube{min: min, edgeLength: h}
}
