package point

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// PointsBatch is a contiguous buffer of points with aligned attribute
// columns. Every attribute column has exactly as many entries as Position.
type PointsBatch struct {
	Position   []mgl64.Vec3
	Attributes map[string]AttributeData
}

// NewPointsBatch returns an empty batch.
func NewPointsBatch() *PointsBatch {
	return &PointsBatch{Attributes: make(map[string]AttributeData)}
}

func (b *PointsBatch) Len() int { return len(b.Position) }

// AttributeNames returns the attribute keys in deterministic (sorted) order.
func (b *PointsBatch) AttributeNames() []string {
	names := make([]string, 0, len(b.Attributes))
	for name := range b.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Append moves all points of other onto the end of this batch. Both batches
// must carry the same attribute set.
func (b *PointsBatch) Append(other *PointsBatch) error {
	if len(b.Position) == 0 {
		b.Position = other.Position
		b.Attributes = other.Attributes
		other.Position = nil
		other.Attributes = make(map[string]AttributeData)
		return nil
	}
	if len(b.Attributes) != len(other.Attributes) {
		return errors.Wrap(ErrInvalidInput, "appending batches with different attribute sets")
	}
	b.Position = append(b.Position, other.Position...)
	other.Position = other.Position[:0]
	for name, column := range b.Attributes {
		otherColumn, ok := other.Attributes[name]
		if !ok {
			return errors.Wrapf(ErrInvalidInput, "appended batch misses attribute %q", name)
		}
		if err := column.Append(otherColumn); err != nil {
			return err
		}
	}
	return nil
}

// SplitOff removes and returns the points from index at onwards, preserving
// column alignment.
func (b *PointsBatch) SplitOff(at int) *PointsBatch {
	tail := &PointsBatch{
		Position:   append([]mgl64.Vec3(nil), b.Position[at:]...),
		Attributes: make(map[string]AttributeData, len(b.Attributes)),
	}
	b.Position = b.Position[:at]
	for name, column := range b.Attributes {
		tail.Attributes[name] = column.SplitOff(at)
	}
	return tail
}

// Clone returns a deep copy of the batch.
func (b *PointsBatch) Clone() *PointsBatch {
	clone := &PointsBatch{
		Position:   append([]mgl64.Vec3(nil), b.Position...),
		Attributes: make(map[string]AttributeData, len(b.Attributes)),
	}
	for name, column := range b.Attributes {
		clone.Attributes[name] = column.Clone()
	}
	return clone
}

// Retain keeps only the points whose mask entry is true, in a single pass
// over every column.
func (b *PointsBatch) Retain(keep []bool) {
	b.Position = retain(b.Position, keep)
	for _, column := range b.Attributes {
		column.Retain(keep)
	}
}
