package xray

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pointgrid/pointgrid/pkg/point"
	"github.com/pointgrid/pointgrid/pkg/quadtree"
)

// CurrentVersion is the x-ray meta schema version this build writes.
//
// Version 2 -> 3: bounding rect changed from float to double min and edge.
// Converted on read.
const CurrentVersion int32 = 3

// MetaFilename is the descriptor file within a pyramid directory.
const MetaFilename = "meta.pb"

// ImageFileExtension is the tile raster format.
const ImageFileExtension = "png"

// Meta describes a built x-ray pyramid.
type Meta struct {
	Version      int32
	BoundingRect quadtree.Rect
	TileSize     uint32
	DeepestLevel uint8
	Nodes        map[quadtree.NodeId]struct{}
}

const (
	xrayMetaFieldVersion      = 1
	xrayMetaFieldBoundingRect = 2
	xrayMetaFieldTileSize     = 3
	xrayMetaFieldDeepestLevel = 4
	xrayMetaFieldNodeId       = 5

	rectFieldMin                  = 1
	rectFieldEdgeLength           = 2
	rectFieldDeprecatedMin        = 3
	rectFieldDeprecatedEdgeLength = 4

	vector2FieldX = 1
	vector2FieldY = 2

	quadtreeNodeIdFieldLevel = 1
	quadtreeNodeIdFieldIndex = 2
)

// Marshal serializes the descriptor at the current version.
func (m *Meta) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, xrayMetaFieldVersion, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(uint32(CurrentVersion)))

	var rect []byte
	var min []byte
	min = protowire.AppendTag(min, vector2FieldX, protowire.Fixed64Type)
	min = protowire.AppendFixed64(min, math.Float64bits(m.BoundingRect.Min().X()))
	min = protowire.AppendTag(min, vector2FieldY, protowire.Fixed64Type)
	min = protowire.AppendFixed64(min, math.Float64bits(m.BoundingRect.Min().Y()))
	rect = protowire.AppendTag(rect, rectFieldMin, protowire.BytesType)
	rect = protowire.AppendBytes(rect, min)
	rect = protowire.AppendTag(rect, rectFieldEdgeLength, protowire.Fixed64Type)
	rect = protowire.AppendFixed64(rect, math.Float64bits(m.BoundingRect.EdgeLength()))
	buf = protowire.AppendTag(buf, xrayMetaFieldBoundingRect, protowire.BytesType)
	buf = protowire.AppendBytes(buf, rect)

	buf = protowire.AppendTag(buf, xrayMetaFieldTileSize, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.TileSize))
	buf = protowire.AppendTag(buf, xrayMetaFieldDeepestLevel, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.DeepestLevel))

	for id := range m.Nodes {
		var node []byte
		node = protowire.AppendTag(node, quadtreeNodeIdFieldLevel, protowire.VarintType)
		node = protowire.AppendVarint(node, uint64(id.Level()))
		node = protowire.AppendTag(node, quadtreeNodeIdFieldIndex, protowire.VarintType)
		node = protowire.AppendVarint(node, id.Index())
		buf = protowire.AppendTag(buf, xrayMetaFieldNodeId, protowire.BytesType)
		buf = protowire.AppendBytes(buf, node)
	}
	return buf
}

// UnmarshalMeta parses a descriptor, promoting version 2 on the fly.
func UnmarshalMeta(data []byte) (*Meta, error) {
	meta := &Meta{Nodes: make(map[quadtree.NodeId]struct{})}
	rest := data
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, errors.Wrap(point.ErrInvalidInput, "malformed x-ray meta")
		}
		rest = rest[n:]
		switch num {
		case xrayMetaFieldVersion:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed x-ray meta version")
			}
			rest = rest[n:]
			meta.Version = int32(v)
		case xrayMetaFieldBoundingRect:
			raw, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed x-ray bounding rect")
			}
			rest = rest[n:]
			rect, err := unmarshalRect(raw)
			if err != nil {
				return nil, err
			}
			meta.BoundingRect = rect
		case xrayMetaFieldTileSize:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed x-ray tile size")
			}
			rest = rest[n:]
			meta.TileSize = uint32(v)
		case xrayMetaFieldDeepestLevel:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed x-ray deepest level")
			}
			rest = rest[n:]
			meta.DeepestLevel = uint8(v)
		case xrayMetaFieldNodeId:
			raw, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed x-ray node id")
			}
			rest = rest[n:]
			id, err := unmarshalQuadtreeNodeId(raw)
			if err != nil {
				return nil, err
			}
			meta.Nodes[id] = struct{}{}
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed x-ray meta field")
			}
			rest = rest[n:]
		}
	}
	if meta.Version != CurrentVersion && meta.Version != CurrentVersion-1 {
		return nil, &point.InvalidVersionError{Version: meta.Version}
	}
	meta.Version = CurrentVersion
	return meta, nil
}

func unmarshalRect(raw []byte) (quadtree.Rect, error) {
	var min mgl64.Vec2
	var edgeLength float64
	rest := raw
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return quadtree.Rect{}, errors.Wrap(point.ErrInvalidInput, "malformed x-ray rect")
		}
		rest = rest[n:]
		switch num {
		case rectFieldMin, rectFieldDeprecatedMin:
			raw, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return quadtree.Rect{}, errors.Wrap(point.ErrInvalidInput, "malformed x-ray rect min")
			}
			rest = rest[n:]
			v, err := unmarshalVector2(raw)
			if err != nil {
				return quadtree.Rect{}, err
			}
			min = v
		case rectFieldEdgeLength:
			bits, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return quadtree.Rect{}, errors.Wrap(point.ErrInvalidInput, "malformed x-ray rect edge")
			}
			rest = rest[n:]
			edgeLength = math.Float64frombits(bits)
		case rectFieldDeprecatedEdgeLength:
			bits, n := protowire.ConsumeFixed32(rest)
			if n < 0 {
				return quadtree.Rect{}, errors.Wrap(point.ErrInvalidInput, "malformed x-ray rect edge")
			}
			rest = rest[n:]
			edgeLength = float64(math.Float32frombits(bits))
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return quadtree.Rect{}, errors.Wrap(point.ErrInvalidInput, "malformed x-ray rect field")
			}
			rest = rest[n:]
		}
	}
	return quadtree.NewRect(min, edgeLength), nil
}

func unmarshalVector2(raw []byte) (mgl64.Vec2, error) {
	var v mgl64.Vec2
	rest := raw
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return v, errors.Wrap(point.ErrInvalidInput, "malformed x-ray vector")
		}
		rest = rest[n:]
		var value float64
		switch typ {
		case protowire.Fixed64Type:
			bits, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return v, errors.Wrap(point.ErrInvalidInput, "malformed x-ray vector")
			}
			rest = rest[n:]
			value = math.Float64frombits(bits)
		case protowire.Fixed32Type:
			bits, n := protowire.ConsumeFixed32(rest)
			if n < 0 {
				return v, errors.Wrap(point.ErrInvalidInput, "malformed x-ray vector")
			}
			rest = rest[n:]
			value = float64(math.Float32frombits(bits))
		default:
			return v, errors.Wrap(point.ErrInvalidInput, "malformed x-ray vector field")
		}
		if num == vector2FieldX || num == vector2FieldY {
			v[num-vector2FieldX] = value
		}
	}
	return v, nil
}

func unmarshalQuadtreeNodeId(raw []byte) (quadtree.NodeId, error) {
	var level, index uint64
	rest := raw
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return quadtree.NodeId{}, errors.Wrap(point.ErrInvalidInput, "malformed x-ray node id")
		}
		rest = rest[n:]
		if typ != protowire.VarintType {
			return quadtree.NodeId{}, errors.Wrap(point.ErrInvalidInput, "malformed x-ray node id field")
		}
		v, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return quadtree.NodeId{}, errors.Wrap(point.ErrInvalidInput, "malformed x-ray node id")
		}
		rest = rest[n:]
		switch num {
		case quadtreeNodeIdFieldLevel:
			level = v
		case quadtreeNodeIdFieldIndex:
			index = v
		}
	}
	return quadtree.NewNodeId(uint8(level), index), nil
}

// FromDisk loads the descriptor of a pyramid directory.
func FromDisk(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFilename))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", MetaFilename)
	}
	meta, err := UnmarshalMeta(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", MetaFilename)
	}
	return meta, nil
}

// ToDisk writes the descriptor into dir, the last step of a pyramid build.
func (m *Meta) ToDisk(dir string) error {
	path := filepath.Join(dir, MetaFilename)
	if err := os.WriteFile(path, m.Marshal(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
