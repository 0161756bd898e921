package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

// NumPointsPerBatch is the default batch size of node reads.
const NumPointsPerBatch = 500_000

// NodeIterator streams the points of one node as aligned batches. Positions
// are decoded against the node cube; every requested attribute is read in
// lockstep so all columns stay aligned with the position vector.
type NodeIterator struct {
	id               NodeId
	boundingCube     geom.Cube
	positionEncoding PositionEncoding
	numPoints        int64
	batchSize        int

	xyzReader io.Reader
	columns   []columnReader
	closers   []io.Closer

	pointsRead int64
}

type columnReader struct {
	name   string
	dtype  point.AttributeDataType
	reader io.Reader
}

// NewNodeIterator opens the streams of the node named by id. attributes must
// not contain "position" (it is always read). Attribute data types come from
// the tree meta; unknown names are rejected with ErrInvalidInput.
func NewNodeIterator(
	provider DataProvider,
	meta *Meta,
	id NodeId,
	numPoints int64,
	attributes []string,
	batchSize int,
) (*NodeIterator, error) {
	if batchSize <= 0 {
		batchSize = NumPointsPerBatch
	}
	cube, encoding := meta.EncodingForNode(id)

	wanted := append([]string{"position"}, attributes...)
	for _, name := range attributes {
		if _, ok := meta.AttributeTypes[name]; !ok && name != "color" && name != "intensity" {
			return nil, errors.Wrapf(point.ErrInvalidInput, "unknown attribute %q", name)
		}
	}
	readers, err := provider.Data(id.String(), wanted)
	if err != nil {
		return nil, err
	}

	it := &NodeIterator{
		id:               id,
		boundingCube:     cube,
		positionEncoding: encoding,
		numPoints:        numPoints,
		batchSize:        batchSize,
	}
	for name, rc := range readers {
		it.closers = append(it.closers, rc)
		if name == "position" {
			it.xyzReader = bufio.NewReader(rc)
			continue
		}
		it.columns = append(it.columns, columnReader{
			name:   name,
			dtype:  attributeType(meta, name),
			reader: bufio.NewReader(rc),
		})
	}
	return it, nil
}

func attributeType(meta *Meta, name string) point.AttributeDataType {
	if t, ok := meta.AttributeTypes[name]; ok {
		return t
	}
	switch name {
	case "color":
		return point.U8Vec3
	case "intensity":
		return point.F32
	}
	return point.InvalidDataType
}

// NumPoints returns the node's total point count.
func (it *NodeIterator) NumPoints() int64 { return it.numPoints }

// NextBatch reads the next batch, or io.EOF after the last one. The returned
// batch holds between 1 and batchSize points.
func (it *NodeIterator) NextBatch() (*point.PointsBatch, error) {
	remaining := it.numPoints - it.pointsRead
	if remaining <= 0 {
		return nil, io.EOF
	}
	n := it.batchSize
	if int64(n) > remaining {
		n = int(remaining)
	}

	batch := point.NewPointsBatch()
	positions, err := it.readPositions(n)
	if err != nil {
		return nil, errors.Wrapf(err, "reading positions of node %s", it.id)
	}
	batch.Position = positions

	for _, column := range it.columns {
		data, err := point.NewAttributeData(column.dtype)
		if err != nil {
			return nil, err
		}
		if err := data.ReadFrom(column.reader, n); err != nil {
			return nil, errors.Wrapf(err, "reading attribute %s of node %s", column.name, it.id)
		}
		batch.Attributes[column.name] = data
	}

	it.pointsRead += int64(n)
	return batch, nil
}

func (it *NodeIterator) readPositions(n int) ([]mgl64.Vec3, error) {
	min := it.boundingCube.Min()
	edge := it.boundingCube.EdgeLength()
	raw := make([]byte, n*3*it.positionEncoding.BytesPerCoordinate())
	if _, err := io.ReadFull(it.xyzReader, raw); err != nil {
		return nil, err
	}
	positions := make([]mgl64.Vec3, n)
	switch it.positionEncoding {
	case Uint8:
		for i := range positions {
			for c := 0; c < 3; c++ {
				positions[i][c] = fixpointDecode8(raw[i*3+c], min[c], edge)
			}
		}
	case Uint16:
		for i := range positions {
			for c := 0; c < 3; c++ {
				v := binary.LittleEndian.Uint16(raw[(i*3+c)*2:])
				positions[i][c] = fixpointDecode16(v, min[c], edge)
			}
		}
	case Float32:
		for i := range positions {
			for c := 0; c < 3; c++ {
				v := math.Float32frombits(binary.LittleEndian.Uint32(raw[(i*3+c)*4:]))
				positions[i][c] = floatDecode(float64(v), min[c], edge)
			}
		}
	case Float64:
		for i := range positions {
			for c := 0; c < 3; c++ {
				v := math.Float64frombits(binary.LittleEndian.Uint64(raw[(i*3+c)*8:]))
				positions[i][c] = floatDecode(v, min[c], edge)
			}
		}
	default:
		return nil, errors.Wrapf(point.ErrInvalidInput, "position encoding %d", it.positionEncoding)
	}
	return positions, nil
}

// ForEachPoint streams every point of the node through fn. Used by the
// builder's subsampling pass, which works point-wise.
func (it *NodeIterator) ForEachPoint(fn func(*point.Point) error) error {
	for {
		batch, err := it.NextBatch()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		var colors [][3]uint8
		if c, ok := batch.Attributes["color"]; ok {
			if colors, err = point.U8Vec3Values(c); err != nil {
				return err
			}
		}
		var intensities []float32
		if c, ok := batch.Attributes["intensity"]; ok {
			if intensities, err = point.F32Values(c); err != nil {
				return err
			}
		}
		var p point.Point
		for i := range batch.Position {
			p.Position = batch.Position[i]
			if colors != nil {
				p.Color = point.Color{R: colors[i][0], G: colors[i][1], B: colors[i][2], A: 255}
			}
			if intensities != nil {
				p.Intensity = intensities[i]
				p.HasIntensity = true
			}
			if err := fn(&p); err != nil {
				return err
			}
		}
	}
}

// Close releases the underlying streams.
func (it *NodeIterator) Close() error {
	var firstErr error
	for _, c := range it.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
