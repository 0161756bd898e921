package point

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRawFile(t *testing.T, points []Point, withIntensity bool) string {
	t.Helper()
	var buf []byte
	for _, p := range points {
		for i := 0; i < 3; i++ {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Position[i]))
		}
		buf = append(buf, p.Color.R, p.Color.G, p.Color.B)
		if withIntensity {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(p.Intensity))
		}
	}
	path := filepath.Join(t.TempDir(), "points.raw")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestRawFileSource(t *testing.T) {
	want := []Point{
		{Position: mgl64.Vec3{1, 2, 3}, Color: Color{R: 9, G: 8, B: 7, A: 255}},
		{Position: mgl64.Vec3{-4, 0.5, 1e9}, Color: Color{R: 1, G: 2, B: 3, A: 255}},
	}
	path := writeRawFile(t, want, false)

	source := &RawFileSource{Path: path}
	n, ok := source.SizeHint()
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	var got []Point
	require.NoError(t, source.ForEach(func(p *Point) error {
		got = append(got, *p)
		return nil
	}))
	assert.Equal(t, want, got)
}

func TestRawFileSourceWithIntensity(t *testing.T) {
	want := []Point{
		{Position: mgl64.Vec3{0, 0, 0}, Color: Color{A: 255}, Intensity: 42.5, HasIntensity: true},
	}
	path := writeRawFile(t, want, true)

	source := &RawFileSource{Path: path, HasIntensity: true}
	var got []Point
	require.NoError(t, source.ForEach(func(p *Point) error {
		got = append(got, *p)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, float32(42.5), got[0].Intensity)
	assert.True(t, got[0].HasIntensity)
}

func TestRawFileSourceRejectsTruncatedFile(t *testing.T) {
	path := writeRawFile(t, []Point{{Color: Color{A: 255}}}, false)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o644))

	source := &RawFileSource{Path: path}
	err = source.ForEach(func(*Point) error { return nil })
	assert.True(t, IsInvalidInput(err))
}
