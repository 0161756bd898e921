package xray

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointgrid/pointgrid/pkg/point"
)

func TestXRayStrategySaturation(t *testing.T) {
	kind := StrategyKind{Name: "xray"}
	strategy, err := kind.NewStrategy()
	require.NoError(t, err)

	// Heights {0, 0, 0, 1, 2} discretize into 3 distinct z buckets.
	var p point.Point
	for _, z := range []uint32{0, 0, 0, 1, 2} {
		strategy.ProcessDiscretizedPoint(&p, 3, 4, z)
	}

	c := strategy.PixelColor(3, 4)
	want := uint8((1 - math.Log(3)/math.Log(NumZBuckets)) * 255)
	assert.Equal(t, want, c.R)
	assert.InDelta(t, 214, int(c.R), 1)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.R, c.B)

	assert.Equal(t, point.Transparent, strategy.PixelColor(0, 0))
}

func TestPointColorStrategyMean(t *testing.T) {
	kind := StrategyKind{Name: "colored"}
	strategy, err := kind.NewStrategy()
	require.NoError(t, err)

	red := point.Point{Color: point.Color{R: 255, A: 255}}
	blue := point.Point{Color: point.Color{B: 255, A: 255}}
	strategy.ProcessDiscretizedPoint(&red, 0, 0, 0)
	strategy.ProcessDiscretizedPoint(&blue, 0, 0, 1)

	c := strategy.PixelColor(0, 0)
	assert.InDelta(t, 128, int(c.R), 1)
	assert.InDelta(t, 0, int(c.G), 1)
	assert.InDelta(t, 128, int(c.B), 1)
	assert.Equal(t, uint8(255), c.A)
}

func TestIntensityStrategy(t *testing.T) {
	kind := StrategyKind{Name: "intensity", MinIntensity: 1, MaxIntensity: 101}
	strategy, err := kind.NewStrategy()
	require.NoError(t, err)

	p := point.Point{Intensity: 11, HasIntensity: true}
	strategy.ProcessDiscretizedPoint(&p, 1, 1, 0)

	c := strategy.PixelColor(1, 1)
	want := math.Log(10) / math.Log(100)
	assert.InDelta(t, want*255, float64(c.R), 1)
	assert.Equal(t, uint8(255), c.A)

	// Negative intensities are sensor noise and ignored.
	noise := point.Point{Intensity: -5, HasIntensity: true}
	strategy.ProcessDiscretizedPoint(&noise, 2, 2, 0)
	assert.Equal(t, point.Transparent, strategy.PixelColor(2, 2))
}

func TestIntensityStrategyRejectsBadBounds(t *testing.T) {
	kind := StrategyKind{Name: "intensity", MinIntensity: 5, MaxIntensity: 5}
	_, err := kind.NewStrategy()
	assert.Error(t, err)
}

func TestHeightStddevStrategy(t *testing.T) {
	kind := StrategyKind{Name: "height_stddev", MaxStddev: 2}
	strategy, err := kind.NewStrategy()
	require.NoError(t, err)

	// Constant height: stddev 0 maps to the jet minimum (dark blue).
	for i := 0; i < 5; i++ {
		p := point.Point{}
		strategy.ProcessDiscretizedPoint(&p, 0, 0, 0)
	}
	c := strategy.PixelColor(0, 0)
	assert.Equal(t, uint8(0), c.R)
	assert.Equal(t, uint8(0), c.G)
	assert.NotZero(t, c.B)
	assert.Equal(t, uint8(255), c.A)

	assert.Equal(t, point.Transparent, strategy.PixelColor(9, 9))
}

func TestOnlineStats(t *testing.T) {
	var stats onlineStats
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		stats.Add(v)
	}
	assert.InDelta(t, 2.0, stats.Stddev(), 1e-9)
}

func TestUnknownStrategy(t *testing.T) {
	kind := StrategyKind{Name: "sepia"}
	_, err := kind.NewStrategy()
	assert.True(t, point.IsInvalidInput(err))
}

func TestJetColormapEnds(t *testing.T) {
	low := jetColor(0)
	assert.Equal(t, uint8(0), low.R)
	high := jetColor(1)
	assert.Equal(t, uint8(0), high.B)
	mid := jetColor(0.5)
	assert.Equal(t, uint8(255), mid.G)
}
