package quadtree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Rect is an axis-aligned square in the XY plane.
type Rect struct {
	min        mgl64.Vec2
	edgeLength float64
}

// NewRect builds a square from its minimum corner and edge length.
func NewRect(min mgl64.Vec2, edgeLength float64) Rect {
	return Rect{min: min, edgeLength: edgeLength}
}

func (r *Rect) Min() mgl64.Vec2 { return r.min }
func (r *Rect) EdgeLength() float64 { return r.edgeLength }

func (r *Rect) Max() mgl64.Vec2 {
	return mgl64.Vec2{r.min.X() + r.edgeLength, r.min.Y() + r.edgeLength}
}

func (r *Rect) Center() mgl64.Vec2 {
	h := r.edgeLength / 2
	return mgl64.Vec2{r.min.X() + h, r.min.Y() + h}
}

// Node pairs a quadtree id with its bounding square.
type Node struct {
	Id           NodeId
	BoundingRect Rect
}

// RootNode returns the root node over the given square.
func RootNode(rect Rect) Node {
	return Node{Id: RootId(), BoundingRect: rect}
}

// Child returns the child node for the index bit pattern (x_hi, y_hi).
func (n *Node) Child(childIndex int) Node {
	h := n.BoundingRect.edgeLength / 2
	min := n.BoundingRect.min
	if childIndex&0b01 != 0 {
		min[1] += h
	}
	if childIndex&0b10 != 0 {
		min[0] += h
	}
	return Node{
		Id:           n.Id.ChildId(childIndex),
		BoundingRect: Rect{min: min, edgeLength: h},
	}
}

// Level returns the node's level, with 0 being the root.
func (n *Node) Level() uint8 {
	return n.Id.Level()
}
