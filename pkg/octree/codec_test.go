package octree

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

func TestPositionEncodingSelection(t *testing.T) {
	cube := geom.NewCube(mgl64.Vec3{}, 100)
	// 100/1 -> 8 bits, 100/0.5 -> 9 bits, and so on.
	assert.Equal(t, Uint8, NewPositionEncoding(&cube, 1))
	assert.Equal(t, Uint16, NewPositionEncoding(&cube, 0.5))
	assert.Equal(t, Uint16, NewPositionEncoding(&cube, 0.01))
	assert.Equal(t, Float32, NewPositionEncoding(&cube, 1e-4))
	assert.Equal(t, Float64, NewPositionEncoding(&cube, 1e-9))
}

func TestPositionEncodingBytes(t *testing.T) {
	assert.Equal(t, 1, Uint8.BytesPerCoordinate())
	assert.Equal(t, 2, Uint16.BytesPerCoordinate())
	assert.Equal(t, 4, Float32.BytesPerCoordinate())
	assert.Equal(t, 8, Float64.BytesPerCoordinate())
}

// Writing then reading a node must reproduce every position within the
// resolution the encoding was chosen for, clamped to the node cube.
func TestNodeWriteReadQuantizationBound(t *testing.T) {
	for _, tc := range []struct {
		name       string
		resolution float64
		want       PositionEncoding
	}{
		{"u8", 1.0, Uint8},
		{"u16", 1e-2, Uint16},
		{"f32", 1e-4, Float32},
		{"f64", 1e-9, Float64},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			provider := &OnDiskDataProvider{Directory: dir}
			bbox := geom.NewAabb(mgl64.Vec3{-10, -10, -10}, mgl64.Vec3{90, 90, 90})
			meta := NewMeta(bbox, tc.resolution)

			id := mustParse(t, "r0")
			cube, encoding := meta.EncodingForNode(id)
			require.Equal(t, tc.want, encoding)

			rng := rand.New(rand.NewSource(1))
			points := make([]point.Point, 1000)
			for i := range points {
				points[i] = point.Point{
					Position: mgl64.Vec3{
						cube.Min().X() + rng.Float64()*cube.EdgeLength(),
						cube.Min().Y() + rng.Float64()*cube.EdgeLength(),
						cube.Min().Z() + rng.Float64()*cube.EdgeLength(),
					},
					Color: point.Color{R: uint8(i), G: uint8(i >> 8), B: 7, A: 255},
				}
			}

			w, err := NewNodeWriterForMeta(provider, meta, id)
			require.NoError(t, err)
			for i := range points {
				require.NoError(t, w.WritePoint(&points[i]))
			}
			require.NoError(t, w.Close())

			n, err := provider.NumberOfPoints(id.String())
			require.NoError(t, err)
			require.EqualValues(t, len(points), n)

			it, err := NewNodeIterator(provider, meta, id, n, []string{"color"}, 256)
			require.NoError(t, err)
			defer it.Close()

			var got []mgl64.Vec3
			var colors [][3]uint8
			err = it.ForEachPoint(func(p *point.Point) error {
				got = append(got, p.Position)
				colors = append(colors, [3]uint8{p.Color.R, p.Color.G, p.Color.B})
				return nil
			})
			require.NoError(t, err)
			require.Len(t, got, len(points))

			max := cube.Max()
			for i, decoded := range got {
				for c := 0; c < 3; c++ {
					orig := geom.Clamp(points[i].Position[c], cube.Min()[c], max[c])
					assert.InDelta(t, orig, decoded[c], tc.resolution,
						"point %d coordinate %d", i, c)
				}
				assert.Equal(t, [3]uint8{points[i].Color.R, points[i].Color.G, points[i].Color.B}, colors[i])
			}
		})
	}
}

func mustParse(t *testing.T, s string) NodeId {
	t.Helper()
	id, err := ParseNodeId(s)
	require.NoError(t, err)
	return id
}
