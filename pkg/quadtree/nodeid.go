package quadtree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"strings"

	"github.com/pkg/errors"
)

// NodeId identifies a quadtree node by its level and its index within the
// level. The index packs two bits per level, most significant digit first, so
// siblings differ only in the two lowest bits.
type NodeId struct {
	level uint8
	index uint64
}

// NewNodeId builds an id from its level/index pair as stored in meta.
func NewNodeId(level uint8, index uint64) NodeId {
	return NodeId{level: level, index: index}
}

// RootId returns the root node id.
func RootId() NodeId {
	return NodeId{}
}

func (n NodeId) Level() uint8 { return n.level }
func (n NodeId) Index() uint64 { return n.index }

// ChildId returns the id of the child with the given index in [0, 4).
func (n NodeId) ChildId(childIndex int) NodeId {
	return NodeId{level: n.level + 1, index: n.index<<2 + uint64(childIndex)}
}

// ChildIndex returns this node's index in its parent, or -1 for the root.
func (n NodeId) ChildIndex() int {
	if n.level == 0 {
		return -1
	}
	return int(n.index & 3)
}

// ParentId returns the parent id; ok is false for the root.
func (n NodeId) ParentId() (NodeId, bool) {
	if n.level == 0 {
		return NodeId{}, false
	}
	return NodeId{level: n.level - 1, index: n.index >> 2}, true
}

// String renders the textual form "r" followed by one base-4 digit per level.
func (n NodeId) String() string {
	var sb strings.Builder
	sb.WriteByte('r')
	for level := int(n.level) - 1; level >= 0; level-- {
		sb.WriteByte(byte('0' + (n.index>>(2*level))&3))
	}
	return sb.String()
}

// ParseNodeId is the inverse of String.
func ParseNodeId(s string) (NodeId, error) {
	if len(s) == 0 || s[0] != 'r' {
		return NodeId{}, errors.Errorf("invalid quadtree node id %q", s)
	}
	id := RootId()
	for _, c := range s[1:] {
		if c < '0' || c > '3' {
			return NodeId{}, errors.Errorf("invalid quadtree node id %q", s)
		}
		id = id.ChildId(int(c - '0'))
	}
	return id, nil
}
