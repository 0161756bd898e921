package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math/bits"
	"strings"

	"github.com/pkg/errors"

	"github.com/pointgrid/pointgrid/pkg/geom"
)

// NodeId identifies an octree node by its path from the root. The path is
// held in a 128-bit value as two uint64 halves: a sentinel 1 bit followed by
// one octal digit per level, so the root is 1 and the child c of a node v is
// (v << 3) | c. 128 bits cover 42 levels, far below any practical tree depth.
type NodeId struct {
	high uint64
	low  uint64
}

// RootId returns the root node id.
func RootId() NodeId {
	return NodeId{low: 1}
}

// NodeIdFromHighLow restores an id from the two halves stored in meta.
func NodeIdFromHighLow(high, low uint64) NodeId {
	return NodeId{high: high, low: low}
}

// NodeIdFromLevelIndex restores an id from the deprecated level/index pair of
// version 9 metas: index packs three bits per level.
func NodeIdFromLevelIndex(level uint8, index uint64) NodeId {
	id := RootId().shl(3 * uint(level))
	id.low |= index
	return id
}

func (n NodeId) shl(k uint) NodeId {
	switch {
	case k == 0:
		return n
	case k >= 64:
		return NodeId{high: n.low << (k - 64)}
	default:
		return NodeId{high: n.high<<k | n.low>>(64-k), low: n.low << k}
	}
}

func (n NodeId) shr(k uint) NodeId {
	switch {
	case k == 0:
		return n
	case k >= 64:
		return NodeId{low: n.high >> (k - 64)}
	default:
		return NodeId{high: n.high >> k, low: n.low>>k | n.high<<(64-k)}
	}
}

func (n NodeId) bitLen() int {
	if n.high != 0 {
		return 64 + bits.Len64(n.high)
	}
	return bits.Len64(n.low)
}

// High returns the upper half as stored in meta.
func (n NodeId) High() uint64 { return n.high }

// Low returns the lower half as stored in meta.
func (n NodeId) Low() uint64 { return n.low }

// IsValid reports whether the id carries the sentinel bit.
func (n NodeId) IsValid() bool { return n.high != 0 || n.low != 0 }

// Level returns the node's level, with 0 being the root.
func (n NodeId) Level() int {
	return (n.bitLen() - 1) / 3
}

// ChildId returns the id of the child with the given index in [0, 8).
func (n NodeId) ChildId(childIndex int) NodeId {
	id := n.shl(3)
	id.low |= uint64(childIndex)
	return id
}

// ChildIndex returns this node's index in its parent, or -1 for the root.
func (n NodeId) ChildIndex() int {
	if n.Level() == 0 {
		return -1
	}
	return int(n.low & 7)
}

// ParentId returns the parent id; ok is false for the root.
func (n NodeId) ParentId() (NodeId, bool) {
	if n.Level() == 0 {
		return NodeId{}, false
	}
	return n.shr(3), true
}

// digit returns the path digit for step i in [1, level].
func (n NodeId) digit(i int) int {
	shift := uint(3 * (n.Level() - i))
	return int(n.shr(shift).low & 7)
}

// String renders the textual form "r" followed by one octal digit per level.
func (n NodeId) String() string {
	var sb strings.Builder
	sb.WriteByte('r')
	level := n.Level()
	for i := 1; i <= level; i++ {
		sb.WriteByte(byte('0' + n.digit(i)))
	}
	return sb.String()
}

// ParseNodeId is the inverse of String.
func ParseNodeId(s string) (NodeId, error) {
	if len(s) == 0 || s[0] != 'r' {
		return NodeId{}, errors.Errorf("invalid octree node id %q", s)
	}
	if len(s) > 43 {
		return NodeId{}, errors.Errorf("octree node id %q exceeds the maximum depth", s)
	}
	id := RootId()
	for _, c := range s[1:] {
		if c < '0' || c > '7' {
			return NodeId{}, errors.Errorf("invalid octree node id %q", s)
		}
		id = id.ChildId(int(c - '0'))
	}
	return id, nil
}

// FindBoundingCube walks the path digits down from the root cube to this
// node's cube.
func (n NodeId) FindBoundingCube(root geom.Cube) geom.Cube {
	cube := root
	level := n.Level()
	for i := 1; i <= level; i++ {
		cube = cube.Child(n.digit(i))
	}
	return cube
}
