package point

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Point is a single sample of a point cloud. Position is in the world frame.
// Intensity is usually handed through directly by a sensor and has no defined
// range or meaning.
type Point struct {
	Position mgl64.Vec3
	Color    Color

	Intensity    float32
	HasIntensity bool
}

// Source is a forward-only stream of points with an optional exact size hint.
// No random access is required of implementations.
type Source interface {
	// SizeHint returns the exact number of points and true, or false when
	// the count is unknown up front.
	SizeHint() (int, bool)

	// ForEach calls fn for every point in stream order. The *Point passed
	// to fn may be reused between calls; fn must copy what it keeps.
	// A non-nil error from fn stops the stream and is returned.
	ForEach(fn func(*Point) error) error
}

// SliceSource streams points from memory. Used by tests and by adapters that
// have already materialized their input.
type SliceSource struct {
	Points []Point
}

func (s *SliceSource) SizeHint() (int, bool) { return len(s.Points), true }

func (s *SliceSource) ForEach(fn func(*Point) error) error {
	for i := range s.Points {
		if err := fn(&s.Points[i]); err != nil {
			return err
		}
	}
	return nil
}
