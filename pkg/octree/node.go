package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pointgrid/pointgrid/pkg/geom"
)

// Node pairs an id with its bounding cube. Parent and child nodes are always
// derived arithmetically from the id, never stored as references.
type Node struct {
	Id           NodeId
	BoundingCube geom.Cube
}

// RootNode returns the root node over the given cube.
func RootNode(cube geom.Cube) Node {
	return Node{Id: RootId(), BoundingCube: cube}
}

// Child returns the child node for the index bit pattern (x_hi, y_hi, z_hi).
func (n *Node) Child(childIndex int) Node {
	return Node{
		Id:           n.Id.ChildId(childIndex),
		BoundingCube: n.BoundingCube.Child(childIndex),
	}
}

// Level returns the node's level, with 0 being the root.
func (n *Node) Level() int {
	return n.Id.Level()
}

// ContainingChildIndex picks the child sub-cube holding p. A coordinate
// exactly on the split plane goes to the lower child. Due to floating point
// rounding the chosen sub-cube is not guaranteed to strictly contain p.
func (n *Node) ContainingChildIndex(p mgl64.Vec3) int {
	center := n.BoundingCube.Center()
	index := 0
	if p.X() > center.X() {
		index |= 0b100
	}
	if p.Y() > center.Y() {
		index |= 0b010
	}
	if p.Z() > center.Z() {
		index |= 0b001
	}
	return index
}

// PositionEncoding is the quantization scheme for a node's position stream.
type PositionEncoding int

const (
	InvalidEncoding PositionEncoding = iota
	Uint8
	Uint16
	Float32
	Float64
)

func (e PositionEncoding) String() string {
	switch e {
	case Uint8:
		return "u8"
	case Uint16:
		return "u16"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	}
	return "invalid"
}

// BytesPerCoordinate is constant across a node.
func (e PositionEncoding) BytesPerCoordinate() int {
	switch e {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// NewPositionEncoding picks the smallest encoding that resolves the given
// resolution within the cube.
func NewPositionEncoding(cube *geom.Cube, resolution float64) PositionEncoding {
	bitsNeeded := int(math.Ceil(math.Log2(cube.EdgeLength()/resolution))) + 1
	switch {
	case bitsNeeded <= 8:
		return Uint8
	case bitsNeeded <= 16:
		return Uint16
	case bitsNeeded <= 32:
		return Float32
	default:
		return Float64
	}
}

// NodeMeta is the per-node record of the tree meta.
type NodeMeta struct {
	NumPoints        int64
	PositionEncoding PositionEncoding
	BoundingCube     geom.Cube
}

// NumPointsForLevelOfDetail returns how many points a draw of this node needs
// at the given level of detail.
func (m *NodeMeta) NumPointsForLevelOfDetail(levelOfDetail int32) int64 {
	return int64(math.Ceil(float64(m.NumPoints) / float64(levelOfDetail)))
}
