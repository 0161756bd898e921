package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math"

	"github.com/pointgrid/pointgrid/pkg/geom"
)

// The position codec maps world coordinates into the unit cube of a node and
// back. Fixed-point encodings span the cube with the full integer range;
// float encodings store the normalized coordinate directly. Values are always
// clamped to the cube before encoding, so decoding yields a coordinate inside
// the cube within the configured resolution of the original.

func fixpointEncode8(value, min, edgeLength float64) uint8 {
	v := geom.Clamp((value-min)/edgeLength, 0, 1) * math.MaxUint8
	return uint8(math.Round(v))
}

func fixpointEncode16(value, min, edgeLength float64) uint16 {
	v := geom.Clamp((value-min)/edgeLength, 0, 1) * math.MaxUint16
	return uint16(math.Round(v))
}

func fixpointDecode8(value uint8, min, edgeLength float64) float64 {
	return float64(value)/math.MaxUint8*edgeLength + min
}

func fixpointDecode16(value uint16, min, edgeLength float64) float64 {
	return float64(value)/math.MaxUint16*edgeLength + min
}

func floatEncode(value, min, edgeLength float64) float64 {
	return geom.Clamp((value-min)/edgeLength, 0, 1)
}

func floatDecode(value, min, edgeLength float64) float64 {
	return value*edgeLength + min
}
