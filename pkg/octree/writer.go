package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

// DataWriter is a buffered stream writer that counts bytes and removes its
// file again when nothing was written into it. A node that receives no points
// must not exist on disk.
type DataWriter struct {
	file         *os.File
	buf          *bufio.Writer
	path         string
	bytesWritten int64
}

// NewDataWriter creates (truncating) the stream file at path.
func NewDataWriter(path string) (*DataWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return &DataWriter{file: f, buf: bufio.NewWriter(f), path: path}, nil
}

func (w *DataWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.bytesWritten += int64(n)
	return n, err
}

func (w *DataWriter) BytesWritten() int64 { return w.bytesWritten }

// Close flushes and seals the stream. An empty stream is deleted; removal
// errors are ignored in case the file is already gone.
func (w *DataWriter) Close() error {
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if w.bytesWritten == 0 {
		_ = os.Remove(w.path)
	}
	if flushErr != nil {
		return errors.Wrapf(flushErr, "flushing %s", w.path)
	}
	if closeErr != nil {
		return errors.Wrapf(closeErr, "closing %s", w.path)
	}
	return nil
}

// NodeWriter encodes points into the attribute streams of one node. Position
// is quantized against the node cube; color is three bytes per point;
// intensity and generic attributes are created lazily on first sight.
type NodeWriter struct {
	stem             string
	positionEncoding PositionEncoding
	boundingCube     geom.Cube

	xyzWriter       *DataWriter
	rgbWriter       *DataWriter
	intensityWriter *DataWriter
	attributeWriter map[string]*DataWriter

	numWritten int64
	scratch    [24]byte
}

// NewNodeWriter creates the position and color streams for a node at stem.
func NewNodeWriter(stem string, boundingCube geom.Cube, positionEncoding PositionEncoding) (*NodeWriter, error) {
	xyzWriter, err := NewDataWriter(stem + "." + AttributeExtension("position"))
	if err != nil {
		return nil, err
	}
	rgbWriter, err := NewDataWriter(stem + "." + AttributeExtension("color"))
	if err != nil {
		xyzWriter.Close()
		return nil, err
	}
	return &NodeWriter{
		stem:             stem,
		positionEncoding: positionEncoding,
		boundingCube:     boundingCube,
		xyzWriter:        xyzWriter,
		rgbWriter:        rgbWriter,
		attributeWriter:  make(map[string]*DataWriter),
	}, nil
}

// NewNodeWriterForMeta creates a writer whose cube and encoding follow from
// the tree meta, the counterpart of Meta.EncodingForNode.
func NewNodeWriterForMeta(provider *OnDiskDataProvider, meta *Meta, id NodeId) (*NodeWriter, error) {
	cube, encoding := meta.EncodingForNode(id)
	return NewNodeWriter(provider.Stem(id.String()), cube, encoding)
}

// NumWritten returns the number of points written so far.
func (w *NodeWriter) NumWritten() int64 { return w.numWritten }

func (w *NodeWriter) writePosition(p mgl64.Vec3) error {
	min := w.boundingCube.Min()
	edge := w.boundingCube.EdgeLength()
	var buf []byte
	switch w.positionEncoding {
	case Uint8:
		buf = w.scratch[:3]
		for i := 0; i < 3; i++ {
			buf[i] = fixpointEncode8(p[i], min[i], edge)
		}
	case Uint16:
		buf = w.scratch[:6]
		for i := 0; i < 3; i++ {
			binary.LittleEndian.PutUint16(buf[2*i:], fixpointEncode16(p[i], min[i], edge))
		}
	case Float32:
		buf = w.scratch[:12]
		for i := 0; i < 3; i++ {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(floatEncode(p[i], min[i], edge))))
		}
	case Float64:
		buf = w.scratch[:24]
		for i := 0; i < 3; i++ {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(floatEncode(p[i], min[i], edge)))
		}
	default:
		return errors.Wrapf(point.ErrInvalidInput, "position encoding %d", w.positionEncoding)
	}
	_, err := w.xyzWriter.Write(buf)
	return err
}

// WritePoint appends one point to the node. Due to floating point rounding
// while deriving bounding cubes the position may lie slightly outside the
// cube; it is clamped by the codec.
func (w *NodeWriter) WritePoint(p *point.Point) error {
	if err := w.writePosition(p.Position); err != nil {
		return err
	}
	w.scratch[0], w.scratch[1], w.scratch[2] = p.Color.R, p.Color.G, p.Color.B
	if _, err := w.rgbWriter.Write(w.scratch[:3]); err != nil {
		return err
	}
	if p.HasIntensity {
		if w.intensityWriter == nil {
			iw, err := NewDataWriter(w.stem + "." + AttributeExtension("intensity"))
			if err != nil {
				return err
			}
			w.intensityWriter = iw
		}
		binary.LittleEndian.PutUint32(w.scratch[:4], math.Float32bits(p.Intensity))
		if _, err := w.intensityWriter.Write(w.scratch[:4]); err != nil {
			return err
		}
	}
	w.numWritten++
	return nil
}

// WriteBatch appends a whole batch, including generic attribute columns.
// The batch's color column (if any) must be named "color".
func (w *NodeWriter) WriteBatch(b *point.PointsBatch) error {
	for _, pos := range b.Position {
		if err := w.writePosition(pos); err != nil {
			return err
		}
	}
	for _, name := range b.AttributeNames() {
		column := b.Attributes[name]
		var dst *DataWriter
		if name == "color" {
			dst = w.rgbWriter
		} else {
			var ok bool
			dst, ok = w.attributeWriter[name]
			if !ok {
				var err error
				dst, err = NewDataWriter(w.stem + "." + AttributeExtension(name))
				if err != nil {
					return err
				}
				w.attributeWriter[name] = dst
			}
		}
		if err := column.WriteTo(dst); err != nil {
			return errors.Wrapf(err, "writing attribute %s", name)
		}
	}
	w.numWritten += int64(b.Len())
	return nil
}

// Close seals all streams. If no point was written every stream file is
// removed again.
func (w *NodeWriter) Close() error {
	var firstErr error
	collect := func(err error) {
		if firstErr == nil && err != nil {
			firstErr = err
		}
	}
	collect(w.xyzWriter.Close())
	collect(w.rgbWriter.Close())
	if w.intensityWriter != nil {
		collect(w.intensityWriter.Close())
	}
	for _, dw := range w.attributeWriter {
		collect(dw.Close())
	}
	return firstErr
}
