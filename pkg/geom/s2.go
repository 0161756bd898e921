package geom

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// S2CellUnion culls points by membership in a normalized S2 cell union. The
// world frame is assumed to be ECEF so that positions project directly onto
// the sphere.
type S2CellUnion struct {
	union s2.CellUnion
}

// NewS2CellUnion normalizes the given cell ids into a union.
func NewS2CellUnion(ids []s2.CellID) *S2CellUnion {
	union := s2.CellUnion(append([]s2.CellID(nil), ids...))
	union.Normalize()
	return &S2CellUnion{union: union}
}

func (c *S2CellUnion) Union() s2.CellUnion { return c.union }

func cellIDFromVec(p mgl64.Vec3) s2.CellID {
	return s2.CellFromPoint(s2.Point{Vector: r3.Vector{X: p.X(), Y: p.Y(), Z: p.Z()}}).ID()
}

// Contains implements PointCulling via leaf cell membership.
func (c *S2CellUnion) Contains(p mgl64.Vec3) bool {
	return c.union.ContainsCellID(cellIDFromVec(p))
}

// IntersectsAabb covers the box with the cells of its eight corners,
// normalizes that cover and tests the stored union's cells against the
// cover's rect bound. Conservative: never reports In.
func (c *S2CellUnion) IntersectsAabb(aabb *Aabb) Relation {
	corners := aabb.Corners()
	cover := make(s2.CellUnion, 0, len(corners))
	for _, corner := range corners {
		cover = append(cover, cellIDFromVec(corner))
	}
	cover.Normalize()
	rect := cover.RectBound()
	for _, id := range c.union {
		if rect.Intersects(s2.CellFromCellID(id).RectBound()) {
			return Cross
		}
	}
	return Out
}
