package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"io"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

type locationKind int

const (
	locationAllPoints locationKind = iota
	locationAabb
	locationObb
	locationFrustum
	locationS2Cells
)

// Location is the spatial restriction of a query: one of all points, an
// axis-aligned box, an oriented box, a view frustum or an S2 cell union. It
// is a tagged variant dispatched at the top of the filtering loop.
type Location struct {
	kind    locationKind
	aabb    geom.Aabb
	obb     *geom.Obb
	frustum *geom.Frustum
	cells   *geom.S2CellUnion
}

// AllPointsLocation matches every point.
func AllPointsLocation() Location {
	return Location{kind: locationAllPoints}
}

// AabbLocation restricts a query to an axis-aligned box.
func AabbLocation(aabb geom.Aabb) Location {
	return Location{kind: locationAabb, aabb: aabb}
}

// ObbLocation restricts a query to an oriented box.
func ObbLocation(obb *geom.Obb) Location {
	return Location{kind: locationObb, obb: obb}
}

// FrustumLocation restricts a query to a view frustum.
func FrustumLocation(frustum *geom.Frustum) Location {
	return Location{kind: locationFrustum, frustum: frustum}
}

// S2CellsLocation restricts a query to an S2 cell union.
func S2CellsLocation(cells *geom.S2CellUnion) Location {
	return Location{kind: locationS2Cells, cells: cells}
}

// Contains dispatches per-point rejection to the variant.
func (l *Location) Contains(p mgl64.Vec3) bool {
	switch l.kind {
	case locationAabb:
		return l.aabb.Contains(p)
	case locationObb:
		return l.obb.Contains(p)
	case locationFrustum:
		return l.frustum.Contains(p)
	case locationS2Cells:
		return l.cells.Contains(p)
	default:
		return true
	}
}

// IntersectsAabb dispatches node cube pruning to the variant.
func (l *Location) IntersectsAabb(aabb *geom.Aabb) geom.Relation {
	switch l.kind {
	case locationAabb:
		return l.aabb.IntersectsAabb(aabb)
	case locationObb:
		return l.obb.IntersectsAabb(aabb)
	case locationFrustum:
		return l.frustum.IntersectsAabb(aabb)
	case locationS2Cells:
		return l.cells.IntersectsAabb(aabb)
	default:
		return geom.In
	}
}

// PointQuery selects points: which attribute columns to deliver, where in
// space to look and which attribute ranges to keep. Every filter attribute
// must also be listed in Attributes.
type PointQuery struct {
	Attributes      []string
	Location        Location
	FilterIntervals map[string]geom.ClosedInterval
}

// FilteredIterator applies a query's per-point rejection to the batches of a
// node iterator: first the location test, then every interval filter, all
// through one boolean mask so the columns stay aligned.
type FilteredIterator struct {
	query *PointQuery
	inner batchIterator
}

// batchIterator is the read side shared by plain and cached node iterators.
type batchIterator interface {
	NextBatch() (*point.PointsBatch, error)
	Close() error
}

// NewFilteredIterator wraps a node iterator with the query's filters.
func NewFilteredIterator(query *PointQuery, inner batchIterator) *FilteredIterator {
	return &FilteredIterator{query: query, inner: inner}
}

// NextBatch returns the next batch with rejected points removed. Batches that
// filter down to zero points are skipped; io.EOF marks the end.
func (f *FilteredIterator) NextBatch() (*point.PointsBatch, error) {
	for {
		batch, err := f.inner.NextBatch()
		if err != nil {
			return nil, err
		}
		keep := make([]bool, batch.Len())
		location := &f.query.Location
		for i, pos := range batch.Position {
			keep[i] = location.Contains(pos)
		}
		for attribute, interval := range f.query.FilterIntervals {
			column, ok := batch.Attributes[attribute]
			if !ok {
				return nil, errors.Wrapf(point.ErrInvalidInput,
					"filter attribute %q is not a query attribute", attribute)
			}
			for i := range keep {
				if !keep[i] {
					continue
				}
				if v, scalar := column.Scalar(i); scalar && !interval.Contains(v) {
					keep[i] = false
				}
			}
		}
		batch.Retain(keep)
		if batch.Len() > 0 {
			return batch, nil
		}
	}
}

// Close releases the wrapped iterator.
func (f *FilteredIterator) Close() error {
	return f.inner.Close()
}

// Drain feeds every remaining batch to fn and closes the iterator.
func (f *FilteredIterator) Drain(fn func(*point.PointsBatch) error) error {
	defer f.Close()
	for {
		batch, err := f.NextBatch()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}
