package point

import (
	"bytes"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(t *testing.T, n int) *PointsBatch {
	t.Helper()
	b := NewPointsBatch()
	intensities := make([]float32, n)
	colors := make([][3]uint8, n)
	for i := 0; i < n; i++ {
		b.Position = append(b.Position, mgl64.Vec3{float64(i), 0, 0})
		intensities[i] = float32(i)
		colors[i] = [3]uint8{uint8(i), 0, 0}
	}
	b.Attributes["intensity"] = F32Data(intensities)
	b.Attributes["color"] = U8Vec3Data(colors)
	return b
}

func TestBatchAppendAndSplitOff(t *testing.T) {
	a := testBatch(t, 5)
	b := testBatch(t, 3)

	require.NoError(t, a.Append(b))
	assert.Equal(t, 8, a.Len())
	assert.Equal(t, 0, b.Len())
	for _, name := range a.AttributeNames() {
		assert.Equal(t, 8, a.Attributes[name].Len(), "column %s", name)
	}

	tail := a.SplitOff(6)
	assert.Equal(t, 6, a.Len())
	assert.Equal(t, 2, tail.Len())
	assert.Equal(t, 2, tail.Attributes["intensity"].Len())

	// The tail continues where the head stopped.
	intensities, err := F32Values(tail.Attributes["intensity"])
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, intensities)
}

func TestBatchRetainKeepsColumnsAligned(t *testing.T) {
	b := testBatch(t, 6)
	b.Retain([]bool{true, false, true, false, false, true})

	assert.Equal(t, 3, b.Len())
	positions := []float64{b.Position[0].X(), b.Position[1].X(), b.Position[2].X()}
	assert.Equal(t, []float64{0, 2, 5}, positions)

	intensities, err := F32Values(b.Attributes["intensity"])
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2, 5}, intensities)

	colors, err := U8Vec3Values(b.Attributes["color"])
	require.NoError(t, err)
	assert.Equal(t, uint8(5), colors[2][0])
}

func TestBatchAppendRejectsMismatch(t *testing.T) {
	a := testBatch(t, 2)
	b := NewPointsBatch()
	b.Position = append(b.Position, mgl64.Vec3{})
	b.Attributes["intensity"] = F32Data([]float32{1})
	assert.Error(t, a.Append(b))
}

func TestAttributeDataDiskRoundTrip(t *testing.T) {
	column, err := NewAttributeData(I16)
	require.NoError(t, err)
	var buf bytes.Buffer
	src := &scalarData[int16]{dtype: I16, values: []int16{-5, 0, 32767}}
	require.NoError(t, src.WriteTo(&buf))
	assert.Equal(t, 6, buf.Len())

	require.NoError(t, column.ReadFrom(&buf, 3))
	v, ok := column.Scalar(2)
	assert.True(t, ok)
	assert.Equal(t, 32767.0, v)
	assert.Equal(t, I16, column.DataType())
}

func TestVec3ColumnsHaveNoScalarOrder(t *testing.T) {
	column := U8Vec3Data([][3]uint8{{1, 2, 3}})
	_, ok := column.Scalar(0)
	assert.False(t, ok)
	assert.Equal(t, 3, column.DataType().Dim())
	assert.Equal(t, 3, column.DataType().Size())
}

func TestParseAttributeDataType(t *testing.T) {
	dt, err := ParseAttributeDataType("f32")
	require.NoError(t, err)
	assert.Equal(t, F32, dt)
	_, err = ParseAttributeDataType("complex128")
	assert.True(t, IsInvalidInput(err))
}
