package octree

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

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

// CurrentVersion is the meta schema version this build writes.
//
// Version 9 -> 10: node ids changed from level (u8) and index (u64) to high
// (u64) and low (u64) halves. Converted on read.
// Version 10 -> 11: bounding box changed from float to double vectors.
// Converted on read.
// Version 11 -> 12: attribute types joined the meta.
const CurrentVersion int32 = 12

// OldestSupportedVersion is the oldest meta accepted on read.
const OldestSupportedVersion int32 = 9

// MetaFilename is the descriptor file within a tree directory.
const MetaFilename = "meta.pb"

// Meta is the tree descriptor: authoritative once written, written exactly
// once at the end of a build.
type Meta struct {
	Version        int32
	BoundingBox    geom.Aabb
	Resolution     float64
	Nodes          map[NodeId]NodeMeta
	AttributeTypes map[string]point.AttributeDataType
}

// NewMeta returns an empty descriptor at the current version.
func NewMeta(boundingBox geom.Aabb, resolution float64) *Meta {
	return &Meta{
		Version:        CurrentVersion,
		BoundingBox:    boundingBox,
		Resolution:     resolution,
		Nodes:          make(map[NodeId]NodeMeta),
		AttributeTypes: make(map[string]point.AttributeDataType),
	}
}

// EncodingForNode derives a node's position encoding and cube from the tree
// bounds, the same computation the writer used.
func (m *Meta) EncodingForNode(id NodeId) (geom.Cube, PositionEncoding) {
	cube := id.FindBoundingCube(geom.BoundingCube(&m.BoundingBox))
	return cube, NewPositionEncoding(&cube, m.Resolution)
}

// Wire field numbers. These are the on-disk contract and must never change
// meaning.
const (
	metaFieldVersion     = 1
	metaFieldBoundingBox = 2
	metaFieldResolution  = 3
	metaFieldNode        = 4
	metaFieldAttribute   = 5

	cuboidFieldMin           = 1
	cuboidFieldMax           = 2
	cuboidFieldDeprecatedMin = 3
	cuboidFieldDeprecatedMax = 4

	vectorFieldX = 1
	vectorFieldY = 2
	vectorFieldZ = 3

	nodeFieldId               = 1
	nodeFieldNumPoints        = 2
	nodeFieldPositionEncoding = 3
	nodeFieldDeprecatedLevel  = 4
	nodeFieldDeprecatedIndex  = 5

	nodeIdFieldHigh = 1
	nodeIdFieldLow  = 2

	attributeFieldName     = 1
	attributeFieldDataType = 2
)

// Marshal serializes the descriptor at the current version.
func (m *Meta) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, metaFieldVersion, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(uint32(CurrentVersion)))

	buf = protowire.AppendTag(buf, metaFieldBoundingBox, protowire.BytesType)
	buf = protowire.AppendBytes(buf, marshalCuboid(&m.BoundingBox))

	buf = protowire.AppendTag(buf, metaFieldResolution, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(m.Resolution))

	for id, nodeMeta := range m.Nodes {
		buf = protowire.AppendTag(buf, metaFieldNode, protowire.BytesType)
		buf = protowire.AppendBytes(buf, marshalNode(id, &nodeMeta))
	}

	for name, dataType := range m.AttributeTypes {
		var attr []byte
		attr = protowire.AppendTag(attr, attributeFieldName, protowire.BytesType)
		attr = protowire.AppendString(attr, name)
		attr = protowire.AppendTag(attr, attributeFieldDataType, protowire.VarintType)
		attr = protowire.AppendVarint(attr, uint64(dataType))
		buf = protowire.AppendTag(buf, metaFieldAttribute, protowire.BytesType)
		buf = protowire.AppendBytes(buf, attr)
	}
	return buf
}

func marshalVector3d(v mgl64.Vec3) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, vectorFieldX, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(v.X()))
	buf = protowire.AppendTag(buf, vectorFieldY, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(v.Y()))
	buf = protowire.AppendTag(buf, vectorFieldZ, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, math.Float64bits(v.Z()))
	return buf
}

func marshalCuboid(aabb *geom.Aabb) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, cuboidFieldMin, protowire.BytesType)
	buf = protowire.AppendBytes(buf, marshalVector3d(aabb.Min()))
	buf = protowire.AppendTag(buf, cuboidFieldMax, protowire.BytesType)
	buf = protowire.AppendBytes(buf, marshalVector3d(aabb.Max()))
	return buf
}

func marshalNode(id NodeId, nodeMeta *NodeMeta) []byte {
	var idBuf []byte
	idBuf = protowire.AppendTag(idBuf, nodeIdFieldHigh, protowire.VarintType)
	idBuf = protowire.AppendVarint(idBuf, id.High())
	idBuf = protowire.AppendTag(idBuf, nodeIdFieldLow, protowire.VarintType)
	idBuf = protowire.AppendVarint(idBuf, id.Low())

	var buf []byte
	buf = protowire.AppendTag(buf, nodeFieldId, protowire.BytesType)
	buf = protowire.AppendBytes(buf, idBuf)
	buf = protowire.AppendTag(buf, nodeFieldNumPoints, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(nodeMeta.NumPoints))
	buf = protowire.AppendTag(buf, nodeFieldPositionEncoding, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(nodeMeta.PositionEncoding))
	return buf
}

// UnmarshalMeta parses a descriptor, accepting and promoting versions back to
// OldestSupportedVersion.
func UnmarshalMeta(data []byte) (*Meta, error) {
	meta := &Meta{
		Nodes:          make(map[NodeId]NodeMeta),
		AttributeTypes: make(map[string]point.AttributeDataType),
	}
	var nodeBufs [][]byte
	rest := data
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, errors.Wrap(point.ErrInvalidInput, "malformed meta")
		}
		rest = rest[n:]
		switch num {
		case metaFieldVersion:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed meta version")
			}
			rest = rest[n:]
			meta.Version = int32(v)
		case metaFieldBoundingBox:
			raw, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed meta bounding box")
			}
			rest = rest[n:]
			aabb, err := unmarshalCuboid(raw)
			if err != nil {
				return nil, err
			}
			meta.BoundingBox = aabb
		case metaFieldResolution:
			v, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed meta resolution")
			}
			rest = rest[n:]
			meta.Resolution = math.Float64frombits(v)
		case metaFieldNode:
			raw, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed meta node")
			}
			rest = rest[n:]
			// Node cubes depend on the bounding box, which may follow
			// the node records in the stream; defer.
			nodeBufs = append(nodeBufs, raw)
		case metaFieldAttribute:
			raw, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed meta attribute")
			}
			rest = rest[n:]
			name, dataType, err := unmarshalAttribute(raw)
			if err != nil {
				return nil, err
			}
			meta.AttributeTypes[name] = dataType
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return nil, errors.Wrap(point.ErrInvalidInput, "malformed meta field")
			}
			rest = rest[n:]
		}
	}

	if meta.Version < OldestSupportedVersion || meta.Version > CurrentVersion {
		return nil, &point.InvalidVersionError{Version: meta.Version}
	}

	rootCube := geom.BoundingCube(&meta.BoundingBox)
	for _, raw := range nodeBufs {
		id, nodeMeta, err := unmarshalNode(raw, rootCube)
		if err != nil {
			return nil, err
		}
		if nodeMeta.NumPoints <= 0 {
			return nil, errors.Wrapf(point.ErrInvalidInput, "node %s has no points", id)
		}
		meta.Nodes[id] = nodeMeta
	}
	// Older trees carried implicit position and color only.
	if len(meta.AttributeTypes) == 0 {
		meta.AttributeTypes["color"] = point.U8Vec3
	}
	meta.Version = CurrentVersion
	return meta, nil
}

func unmarshalVector(raw []byte) (mgl64.Vec3, error) {
	var v mgl64.Vec3
	rest := raw
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return v, errors.Wrap(point.ErrInvalidInput, "malformed meta vector")
		}
		rest = rest[n:]
		var value float64
		switch typ {
		case protowire.Fixed64Type:
			bits, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return v, errors.Wrap(point.ErrInvalidInput, "malformed meta vector")
			}
			rest = rest[n:]
			value = math.Float64frombits(bits)
		case protowire.Fixed32Type:
			bits, n := protowire.ConsumeFixed32(rest)
			if n < 0 {
				return v, errors.Wrap(point.ErrInvalidInput, "malformed meta vector")
			}
			rest = rest[n:]
			value = float64(math.Float32frombits(bits))
		default:
			return v, errors.Wrap(point.ErrInvalidInput, "malformed meta vector field")
		}
		if num >= vectorFieldX && num <= vectorFieldZ {
			v[num-vectorFieldX] = value
		}
	}
	return v, nil
}

func unmarshalCuboid(raw []byte) (geom.Aabb, error) {
	var min, max mgl64.Vec3
	rest := raw
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return geom.Aabb{}, errors.Wrap(point.ErrInvalidInput, "malformed meta cuboid")
		}
		rest = rest[n:]
		if typ != protowire.BytesType {
			return geom.Aabb{}, errors.Wrap(point.ErrInvalidInput, "malformed meta cuboid field")
		}
		raw, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return geom.Aabb{}, errors.Wrap(point.ErrInvalidInput, "malformed meta cuboid")
		}
		rest = rest[n:]
		v, err := unmarshalVector(raw)
		if err != nil {
			return geom.Aabb{}, err
		}
		switch num {
		case cuboidFieldMin, cuboidFieldDeprecatedMin:
			min = v
		case cuboidFieldMax, cuboidFieldDeprecatedMax:
			max = v
		}
	}
	return geom.NewAabb(min, max), nil
}

func unmarshalNode(raw []byte, rootCube geom.Cube) (NodeId, NodeMeta, error) {
	var (
		id              NodeId
		deprecatedLevel uint64
		deprecatedIndex uint64
		sawDeprecated   bool
		nodeMeta        NodeMeta
	)
	rest := raw
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return id, nodeMeta, errors.Wrap(point.ErrInvalidInput, "malformed meta node")
		}
		rest = rest[n:]
		switch num {
		case nodeFieldId:
			raw, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return id, nodeMeta, errors.Wrap(point.ErrInvalidInput, "malformed node id")
			}
			rest = rest[n:]
			high, low, err := unmarshalNodeId(raw)
			if err != nil {
				return id, nodeMeta, err
			}
			id = NodeIdFromHighLow(high, low)
		case nodeFieldNumPoints:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return id, nodeMeta, errors.Wrap(point.ErrInvalidInput, "malformed node count")
			}
			rest = rest[n:]
			nodeMeta.NumPoints = int64(v)
		case nodeFieldPositionEncoding:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return id, nodeMeta, errors.Wrap(point.ErrInvalidInput, "malformed node encoding")
			}
			rest = rest[n:]
			if v == uint64(InvalidEncoding) || v > uint64(Float64) {
				return id, nodeMeta, errors.Wrapf(point.ErrInvalidInput, "position encoding %d", v)
			}
			nodeMeta.PositionEncoding = PositionEncoding(v)
		case nodeFieldDeprecatedLevel:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return id, nodeMeta, errors.Wrap(point.ErrInvalidInput, "malformed node level")
			}
			rest = rest[n:]
			deprecatedLevel = v
			sawDeprecated = true
		case nodeFieldDeprecatedIndex:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return id, nodeMeta, errors.Wrap(point.ErrInvalidInput, "malformed node index")
			}
			rest = rest[n:]
			deprecatedIndex = v
			sawDeprecated = true
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return id, nodeMeta, errors.Wrap(point.ErrInvalidInput, "malformed node field")
			}
			rest = rest[n:]
		}
	}
	if !id.IsValid() && sawDeprecated {
		id = NodeIdFromLevelIndex(uint8(deprecatedLevel), deprecatedIndex)
	}
	if !id.IsValid() {
		return id, nodeMeta, errors.Wrap(point.ErrInvalidInput, "meta node without id")
	}
	nodeMeta.BoundingCube = id.FindBoundingCube(rootCube)
	return id, nodeMeta, nil
}

func unmarshalNodeId(raw []byte) (high, low uint64, err error) {
	rest := raw
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return 0, 0, errors.Wrap(point.ErrInvalidInput, "malformed node id")
		}
		rest = rest[n:]
		if typ != protowire.VarintType {
			return 0, 0, errors.Wrap(point.ErrInvalidInput, "malformed node id field")
		}
		v, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return 0, 0, errors.Wrap(point.ErrInvalidInput, "malformed node id")
		}
		rest = rest[n:]
		switch num {
		case nodeIdFieldHigh:
			high = v
		case nodeIdFieldLow:
			low = v
		}
	}
	return high, low, nil
}

func unmarshalAttribute(raw []byte) (string, point.AttributeDataType, error) {
	var name string
	var dataType point.AttributeDataType
	rest := raw
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return "", 0, errors.Wrap(point.ErrInvalidInput, "malformed meta attribute")
		}
		rest = rest[n:]
		switch num {
		case attributeFieldName:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return "", 0, errors.Wrap(point.ErrInvalidInput, "malformed attribute name")
			}
			rest = rest[n:]
			name = v
		case attributeFieldDataType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return "", 0, errors.Wrap(point.ErrInvalidInput, "malformed attribute type")
			}
			rest = rest[n:]
			dataType = point.AttributeDataType(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return "", 0, errors.Wrap(point.ErrInvalidInput, "malformed attribute field")
			}
			rest = rest[n:]
		}
	}
	if name == "" || dataType == point.InvalidDataType {
		return "", 0, errors.Wrap(point.ErrInvalidInput, "incomplete meta attribute")
	}
	return name, dataType, nil
}

// WriteMetaFile serializes the descriptor into dir. This is the last step of
// a build; a directory without the file holds no authoritative tree.
func (m *Meta) WriteMetaFile(dir string) error {
	path := filepath.Join(dir, MetaFilename)
	if err := os.WriteFile(path, m.Marshal(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
