package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/pointgrid/pointgrid/pkg/elog"
	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

const boundingBoxUpdateCount = 100_000

// FindBoundingBox makes one streaming pass over the source and returns the
// box containing all points, plus the point count. Used by builds that were
// not handed explicit bounds.
func FindBoundingBox(view elog.View, source point.Source) (geom.Aabb, int64, error) {
	if view == nil {
		view = elog.NullView{}
	}
	var total int64
	if size, ok := source.SizeHint(); ok {
		total = int64(size)
	}
	progress := view.NewProgress("determining bounding box", "points", total)

	var bbox geom.Aabb
	var numPoints int64
	err := source.ForEach(func(p *point.Point) error {
		if numPoints == 0 {
			bbox = geom.NewAabb(p.Position, p.Position)
		} else {
			bbox.Grow(p.Position)
		}
		numPoints++
		if numPoints%boundingBoxUpdateCount == 0 {
			progress.Increment(boundingBoxUpdateCount)
		}
		return nil
	})
	progress.Finish(err == nil)
	if err != nil {
		return geom.Aabb{}, 0, err
	}
	return bbox, numPoints, nil
}
