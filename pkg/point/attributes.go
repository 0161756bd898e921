package point

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// AttributeDataType enumerates the storable attribute element types.
type AttributeDataType int

const (
	InvalidDataType AttributeDataType = iota
	U8
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F32
	F64
	U8Vec3
	F64Vec3
)

var attributeDataTypeNames = map[AttributeDataType]string{
	U8:      "u8",
	U16:     "u16",
	U32:     "u32",
	U64:     "u64",
	I8:      "i8",
	I16:     "i16",
	I32:     "i32",
	I64:     "i64",
	F32:     "f32",
	F64:     "f64",
	U8Vec3:  "u8vec3",
	F64Vec3: "f64vec3",
}

func (t AttributeDataType) String() string {
	if s, ok := attributeDataTypeNames[t]; ok {
		return s
	}
	return "invalid"
}

// ParseAttributeDataType resolves a type name as written in configs.
func ParseAttributeDataType(s string) (AttributeDataType, error) {
	for t, name := range attributeDataTypeNames {
		if name == s {
			return t, nil
		}
	}
	return InvalidDataType, errors.Wrapf(ErrInvalidInput, "unknown attribute data type %q", s)
}

// Dim returns the number of elements per point.
func (t AttributeDataType) Dim() int {
	switch t {
	case U8Vec3, F64Vec3:
		return 3
	default:
		return 1
	}
}

// Size returns the number of bytes one point occupies in this type's stream.
func (t AttributeDataType) Size() int {
	switch t {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	case U64, I64, F64:
		return 8
	case U8Vec3:
		return 3
	case F64Vec3:
		return 24
	}
	return 0
}

// AttributeData is one attribute column of a batch: a typed vector with one
// entry per point, stored little-endian and tightly packed on disk.
type AttributeData interface {
	DataType() AttributeDataType
	Len() int

	// Append moves all values of other (same type) onto the end of this
	// column. Other is emptied.
	Append(other AttributeData) error

	// SplitOff removes and returns the values from index at onwards.
	SplitOff(at int) AttributeData

	// Retain keeps only the values whose mask entry is true.
	Retain(keep []bool)

	// Scalar returns the i-th value widened to float64. The second result
	// is false for vector-valued columns, which have no scalar order.
	Scalar(i int) (float64, bool)

	// ReadFrom appends n little-endian values read from r.
	ReadFrom(r io.Reader, n int) error

	// WriteTo writes all values little-endian to w.
	WriteTo(w io.Writer) error

	// Clone returns a deep copy of the column.
	Clone() AttributeData
}

type scalarElem interface {
	uint8 | uint16 | uint32 | uint64 | int8 | int16 | int32 | int64 | float32 | float64
}

type scalarData[T scalarElem] struct {
	dtype  AttributeDataType
	values []T
}

type vec3Data[T uint8 | float64] struct {
	dtype  AttributeDataType
	values [][3]T
}

// NewAttributeData returns an empty column of the given type.
func NewAttributeData(t AttributeDataType) (AttributeData, error) {
	switch t {
	case U8:
		return &scalarData[uint8]{dtype: t}, nil
	case U16:
		return &scalarData[uint16]{dtype: t}, nil
	case U32:
		return &scalarData[uint32]{dtype: t}, nil
	case U64:
		return &scalarData[uint64]{dtype: t}, nil
	case I8:
		return &scalarData[int8]{dtype: t}, nil
	case I16:
		return &scalarData[int16]{dtype: t}, nil
	case I32:
		return &scalarData[int32]{dtype: t}, nil
	case I64:
		return &scalarData[int64]{dtype: t}, nil
	case F32:
		return &scalarData[float32]{dtype: t}, nil
	case F64:
		return &scalarData[float64]{dtype: t}, nil
	case U8Vec3:
		return &vec3Data[uint8]{dtype: t}, nil
	case F64Vec3:
		return &vec3Data[float64]{dtype: t}, nil
	}
	return nil, errors.Wrapf(ErrInvalidInput, "attribute data type %d", t)
}

// F32Data wraps float32 values into a column, used for intensity streams.
func F32Data(values []float32) AttributeData {
	return &scalarData[float32]{dtype: F32, values: values}
}

// F64Data wraps float64 values into a column.
func F64Data(values []float64) AttributeData {
	return &scalarData[float64]{dtype: F64, values: values}
}

// U8Vec3Data wraps RGB triplets into a column, used for color streams.
func U8Vec3Data(values [][3]uint8) AttributeData {
	return &vec3Data[uint8]{dtype: U8Vec3, values: values}
}

// F32Values returns the backing float32 slice of an F32 column.
func F32Values(a AttributeData) ([]float32, error) {
	d, ok := a.(*scalarData[float32])
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInput, "attribute holds %s, not f32", a.DataType())
	}
	return d.values, nil
}

// U8Vec3Values returns the backing triplet slice of a U8Vec3 column.
func U8Vec3Values(a AttributeData) ([][3]uint8, error) {
	d, ok := a.(*vec3Data[uint8])
	if !ok {
		return nil, errors.Wrapf(ErrInvalidInput, "attribute holds %s, not u8vec3", a.DataType())
	}
	return d.values, nil
}

func (d *scalarData[T]) DataType() AttributeDataType { return d.dtype }
func (d *scalarData[T]) Len() int { return len(d.values) }

func (d *scalarData[T]) Append(other AttributeData) error {
	o, ok := other.(*scalarData[T])
	if !ok {
		return errors.Wrapf(ErrInvalidInput, "appending %s column to %s column", other.DataType(), d.dtype)
	}
	d.values = append(d.values, o.values...)
	o.values = o.values[:0]
	return nil
}

func (d *scalarData[T]) SplitOff(at int) AttributeData {
	tail := append([]T(nil), d.values[at:]...)
	d.values = d.values[:at]
	return &scalarData[T]{dtype: d.dtype, values: tail}
}

func (d *scalarData[T]) Retain(keep []bool) {
	d.values = retain(d.values, keep)
}

func (d *scalarData[T]) Scalar(i int) (float64, bool) {
	return float64(d.values[i]), true
}

func (d *scalarData[T]) ReadFrom(r io.Reader, n int) error {
	values := make([]T, n)
	if err := binary.Read(r, binary.LittleEndian, values); err != nil {
		return err
	}
	d.values = append(d.values, values...)
	return nil
}

func (d *scalarData[T]) WriteTo(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, d.values)
}

func (d *scalarData[T]) Clone() AttributeData {
	return &scalarData[T]{dtype: d.dtype, values: append([]T(nil), d.values...)}
}

func (d *vec3Data[T]) DataType() AttributeDataType { return d.dtype }
func (d *vec3Data[T]) Len() int { return len(d.values) }

func (d *vec3Data[T]) Append(other AttributeData) error {
	o, ok := other.(*vec3Data[T])
	if !ok {
		return errors.Wrapf(ErrInvalidInput, "appending %s column to %s column", other.DataType(), d.dtype)
	}
	d.values = append(d.values, o.values...)
	o.values = o.values[:0]
	return nil
}

func (d *vec3Data[T]) SplitOff(at int) AttributeData {
	tail := append([][3]T(nil), d.values[at:]...)
	d.values = d.values[:at]
	return &vec3Data[T]{dtype: d.dtype, values: tail}
}

func (d *vec3Data[T]) Retain(keep []bool) {
	d.values = retain(d.values, keep)
}

func (d *vec3Data[T]) Scalar(int) (float64, bool) { return 0, false }

func (d *vec3Data[T]) ReadFrom(r io.Reader, n int) error {
	values := make([][3]T, n)
	if err := binary.Read(r, binary.LittleEndian, values); err != nil {
		return err
	}
	d.values = append(d.values, values...)
	return nil
}

func (d *vec3Data[T]) WriteTo(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, d.values)
}

func (d *vec3Data[T]) Clone() AttributeData {
	return &vec3Data[T]{dtype: d.dtype, values: append([][3]T(nil), d.values...)}
}

// retain compacts values in place according to the mask.
func retain[T any](values []T, keep []bool) []T {
	out := values[:0]
	for i, v := range values {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out
}
