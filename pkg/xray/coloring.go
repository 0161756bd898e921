package xray

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"math"

	"github.com/pkg/errors"

	"github.com/pointgrid/pointgrid/pkg/point"
)

// NumZBuckets subdivides a column's z range. It drives the saturation of a
// pixel in x-rays: the more buckets contain a point, the darker the pixel.
const NumZBuckets = 1024

// ColoringStrategy aggregates the points of one tile column-wise and yields
// the final pixel colors. Implementations are used from a single goroutine.
type ColoringStrategy interface {
	// ProcessDiscretizedPoint folds a point that has been discretized into
	// the pixel (x, y) and the z bucket into the per-column aggregate.
	ProcessDiscretizedPoint(p *point.Point, x, y, z uint32)

	// PixelColor is queried once per raster pixel after all points are
	// processed. Columns that saw no points are transparent.
	PixelColor(x, y uint32) point.Color
}

// StrategyKind selects and parameterizes a coloring strategy.
type StrategyKind struct {
	Name string

	// Intensity bounds for the "intensity" strategy.
	MinIntensity float32
	MaxIntensity float32

	// Clamp value for the "height_stddev" strategy.
	MaxStddev float32
}

// WantsIntensity reports whether the strategy needs the intensity column.
func (k *StrategyKind) WantsIntensity() bool {
	return k.Name == "intensity"
}

// NewStrategy instantiates a fresh per-tile strategy.
func (k *StrategyKind) NewStrategy() (ColoringStrategy, error) {
	switch k.Name {
	case "", "xray":
		return newXRayStrategy(), nil
	case "colored":
		return &pointColorStrategy{perColumn: make(map[pixel]colorSum)}, nil
	case "intensity":
		if k.MaxIntensity <= k.MinIntensity {
			return nil, errors.Wrap(point.ErrInvalidInput, "intensity bounds must satisfy min < max")
		}
		return &intensityStrategy{
			min:       k.MinIntensity,
			max:       k.MaxIntensity,
			perColumn: make(map[pixel]intensitySum),
		}, nil
	case "height_stddev":
		if k.MaxStddev <= 0 {
			return nil, errors.Wrap(point.ErrInvalidInput, "max stddev must be positive")
		}
		return &heightStddevStrategy{
			maxStddev: k.MaxStddev,
			perColumn: make(map[pixel]*onlineStats),
		}, nil
	}
	return nil, errors.Wrapf(point.ErrInvalidInput, "unknown coloring strategy %q", k.Name)
}

type pixel struct {
	x, y uint32
}

// xrayStrategy grays a pixel by how many distinct z buckets hold points.
type xrayStrategy struct {
	zBuckets      map[pixel]map[uint32]struct{}
	maxSaturation float64
}

func newXRayStrategy() *xrayStrategy {
	return &xrayStrategy{
		zBuckets:      make(map[pixel]map[uint32]struct{}),
		maxSaturation: math.Log(NumZBuckets),
	}
}

func (s *xrayStrategy) ProcessDiscretizedPoint(_ *point.Point, x, y, z uint32) {
	px := pixel{x, y}
	buckets, ok := s.zBuckets[px]
	if !ok {
		buckets = make(map[uint32]struct{})
		s.zBuckets[px] = buckets
	}
	buckets[z] = struct{}{}
}

func (s *xrayStrategy) PixelColor(x, y uint32) point.Color {
	buckets, ok := s.zBuckets[pixel{x, y}]
	if !ok {
		return point.Transparent
	}
	saturation := math.Log(float64(len(buckets))) / s.maxSaturation
	value := uint8((1 - saturation) * 255)
	return point.Color{R: value, G: value, B: value, A: value}
}

// pointColorStrategy shows the running mean of the point colors.
type colorSum struct {
	r, g, b, a float32
	count      int
}

type pointColorStrategy struct {
	perColumn map[pixel]colorSum
}

func (s *pointColorStrategy) ProcessDiscretizedPoint(p *point.Point, x, y, _ uint32) {
	px := pixel{x, y}
	sum := s.perColumn[px]
	sum.r += float32(p.Color.R) / 255
	sum.g += float32(p.Color.G) / 255
	sum.b += float32(p.Color.B) / 255
	sum.a += float32(p.Color.A) / 255
	sum.count++
	s.perColumn[px] = sum
}

func (s *pointColorStrategy) PixelColor(x, y uint32) point.Color {
	sum, ok := s.perColumn[pixel{x, y}]
	if !ok {
		return point.Transparent
	}
	n := float32(sum.count)
	return point.ColorFromFloats(sum.r/n, sum.g/n, sum.b/n, sum.a/n)
}

// intensityStrategy brightens a pixel logarithmically by mean intensity.
type intensitySum struct {
	sum   float32
	count int
}

type intensityStrategy struct {
	min, max  float32
	perColumn map[pixel]intensitySum
}

func (s *intensityStrategy) ProcessDiscretizedPoint(p *point.Point, x, y, _ uint32) {
	if !p.HasIntensity || p.Intensity < 0 {
		return
	}
	px := pixel{x, y}
	sum := s.perColumn[px]
	sum.sum += p.Intensity
	sum.count++
	s.perColumn[px] = sum
}

func (s *intensityStrategy) PixelColor(x, y uint32) point.Color {
	sum, ok := s.perColumn[pixel{x, y}]
	if !ok {
		return point.Transparent
	}
	mean := sum.sum / float32(sum.count)
	if mean < s.min {
		mean = s.min
	}
	if mean > s.max {
		mean = s.max
	}
	brighten := float32(math.Log(float64(mean-s.min)) / math.Log(float64(s.max-s.min)))
	return point.ColorFromFloats(brighten, brighten, brighten, 1)
}

// heightStddevStrategy maps the online standard deviation of z heights onto
// the jet colormap.
type heightStddevStrategy struct {
	maxStddev float32
	perColumn map[pixel]*onlineStats
}

func (s *heightStddevStrategy) ProcessDiscretizedPoint(p *point.Point, x, y, _ uint32) {
	px := pixel{x, y}
	stats, ok := s.perColumn[px]
	if !ok {
		stats = &onlineStats{}
		s.perColumn[px] = stats
	}
	stats.Add(p.Position.Z())
}

func (s *heightStddevStrategy) PixelColor(x, y uint32) point.Color {
	stats, ok := s.perColumn[pixel{x, y}]
	if !ok {
		return point.Transparent
	}
	stddev := float32(stats.Stddev())
	if stddev > s.maxStddev {
		stddev = s.maxStddev
	}
	if stddev < 0 {
		stddev = 0
	}
	return jetColor(stddev / s.maxStddev)
}

// onlineStats tracks mean and variance in one pass (Welford's recurrence).
type onlineStats struct {
	n    int64
	mean float64
	m2   float64
}

func (o *onlineStats) Add(v float64) {
	o.n++
	delta := v - o.mean
	o.mean += delta / float64(o.n)
	o.m2 += delta * (v - o.mean)
}

func (o *onlineStats) Stddev() float64 {
	if o.n == 0 {
		return 0
	}
	return math.Sqrt(o.m2 / float64(o.n))
}

// jetColor implements matlab's jet colormap for gray in [0, 1], see
// https://stackoverflow.com/questions/7706339.
func jetColor(gray float32) point.Color {
	base := func(val float32) float32 {
		interpolate := func(val, y0, x0, y1, x1 float32) float32 {
			return (val-x0)*(y1-y0)/(x1-x0) + y0
		}
		switch {
		case val <= -0.75:
			return 0
		case val <= -0.25:
			return interpolate(val, 0.0, -0.75, 1.0, -0.25)
		case val <= 0.25:
			return 1
		case val <= 0.75:
			return interpolate(val, 1.0, 0.25, 0.0, 0.75)
		default:
			return 0
		}
	}
	// The base curves are defined over [-1, 1].
	v := 2*gray - 1
	return point.ColorFromFloats(base(v-0.5), base(v), base(v+0.5), 1)
}
