package xray

import (
	"image"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointgrid/pointgrid/pkg/elog"
	"github.com/pointgrid/pointgrid/pkg/quadtree"
)

func TestDilateErode(t *testing.T) {
	const w, h = 7, 7
	mask := make([]bool, w*h)
	mask[3*w+3] = true

	dilated := dilate(mask, w, h, 2)
	// Chebyshev norm: a 5x5 square around the seed.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			inSquare := x >= 1 && x <= 5 && y >= 1 && y <= 5
			assert.Equal(t, inSquare, dilated[y*w+x], "pixel (%d,%d)", x, y)
		}
	}

	// Erosion undoes the dilation of an isolated seed.
	eroded := erode(dilated, w, h, 2)
	for i := range eroded {
		assert.Equal(t, mask[i], eroded[i])
	}
}

func TestInpaintClosesSmallHole(t *testing.T) {
	// An opaque red square with a transparent 1-pixel hole in the middle.
	const n = 16
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = 200
			img.Pix[i+3] = 255
		}
	}
	hole := img.PixOffset(8, 8)
	img.Pix[hole], img.Pix[hole+1], img.Pix[hole+2], img.Pix[hole+3] = 0, 0, 0, 0

	out := inpaint(img, 2)
	assert.Equal(t, uint8(255), out.Pix[hole+3], "hole still transparent")
	assert.Equal(t, uint8(200), out.Pix[hole], "hole not filled from surrounding red")

	// Pixels far outside the opaque region stay untouched only if the
	// closing did not reach them; the border of this fully opaque image
	// remains opaque red.
	corner := out.PixOffset(0, 0)
	assert.Equal(t, uint8(200), out.Pix[corner])
	assert.Equal(t, uint8(255), out.Pix[corner+3])
}

func TestInpaintLeavesLargeGapsOpen(t *testing.T) {
	// Two opaque columns separated by a gap wider than twice the radius
	// stay separated after closing.
	const n = 32
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for _, x := range []int{0, 1, 30, 31} {
			i := img.PixOffset(x, y)
			img.Pix[i+1] = 255
			img.Pix[i+3] = 255
		}
	}
	out := inpaint(img, 2)
	center := out.PixOffset(16, 16)
	assert.Equal(t, uint8(0), out.Pix[center+3])
}

// End to end: inpainting a rendered pyramid succeeds and removes the
// temporaries.
func TestPerformInpaintingEndToEnd(t *testing.T) {
	tree := buildTestOctree(t)
	out := t.TempDir()

	meta, err := BuildPyramid(nil, tree, BuildOptions{
		OutputDirectory:   out,
		Resolution:        0.05,
		TileSizePx:        64,
		Coloring:          StrategyKind{Name: "colored"},
		InpaintDistancePx: 2,
	})
	require.NoError(t, err)

	files, err := os.ReadDir(out)
	require.NoError(t, err)
	for _, f := range files {
		assert.NotContains(t, f.Name(), inpaintExtension, "temporary left behind")
	}
	assert.NotEmpty(t, meta.Nodes)
}

func TestInpaintStepsSkipMissingTiles(t *testing.T) {
	dir := t.TempDir()
	// No tiles on disk at all: every step is a no-op.
	ids := []quadtree.NodeId{quadtree.RootId()}
	err := performInpainting(elog.NullView{}, dir, 2, ids, 2)
	require.NoError(t, err)
}
