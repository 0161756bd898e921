package point

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

// RawFileSource streams points from a headerless little-endian record file:
// three float64 coordinates followed by three color bytes per point, plus one
// float32 intensity when HasIntensity is set. This is the exchange format the
// external parsers emit.
type RawFileSource struct {
	Path         string
	HasIntensity bool
}

func (s *RawFileSource) recordSize() int {
	size := 3*8 + 3
	if s.HasIntensity {
		size += 4
	}
	return size
}

// SizeHint derives the point count from the file size.
func (s *RawFileSource) SizeHint() (int, bool) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return 0, false
	}
	return int(info.Size()) / s.recordSize(), true
}

// ForEach implements Source.
func (s *RawFileSource) ForEach(fn func(*Point) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", s.Path)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	record := make([]byte, s.recordSize())
	var p Point
	for {
		if _, err := io.ReadFull(r, record); err != nil {
			if err == io.EOF {
				return nil
			}
			if err == io.ErrUnexpectedEOF {
				return errors.Wrapf(ErrInvalidInput, "%s ends mid-record", s.Path)
			}
			return errors.Wrapf(err, "reading %s", s.Path)
		}
		for i := 0; i < 3; i++ {
			p.Position[i] = math.Float64frombits(binary.LittleEndian.Uint64(record[8*i:]))
		}
		p.Color = Color{R: record[24], G: record[25], B: record[26], A: 255}
		if s.HasIntensity {
			p.Intensity = math.Float32frombits(binary.LittleEndian.Uint32(record[27:]))
			p.HasIntensity = true
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
}
