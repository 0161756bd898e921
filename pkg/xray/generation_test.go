package xray

import (
	"image"
	"os"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/octree"
	"github.com/pointgrid/pointgrid/pkg/point"
	"github.com/pointgrid/pointgrid/pkg/quadtree"
)

func TestFindQuadtreeBoundingRectAndLevels(t *testing.T) {
	bbox := geom.NewAabb(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{10, 3, 99})
	rect, levels := FindQuadtreeBoundingRectAndLevels(&bbox, 4)
	// 4 -> 8 -> 16 covers the 10-unit x extent in two doublings.
	assert.Equal(t, uint8(2), levels)
	assert.Equal(t, 16.0, rect.EdgeLength())
	assert.Equal(t, mgl64.Vec2{0, 0}, rect.Min())

	// A single tile suffices when it already covers the extent.
	rect, levels = FindQuadtreeBoundingRectAndLevels(&bbox, 12)
	assert.Equal(t, uint8(0), levels)
	assert.Equal(t, 12.0, rect.EdgeLength())
}

func TestBuildParentPlacement(t *testing.T) {
	const n = 4
	solid := func(c point.Color) *image.NRGBA {
		img := image.NewNRGBA(image.Rect(0, 0, n, n))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
		}
		return img
	}
	var children [4]*image.NRGBA
	children[0] = solid(point.Color{R: 10, A: 255})
	children[1] = solid(point.Color{R: 20, A: 255})
	children[2] = solid(point.Color{R: 30, A: 255})
	children[3] = solid(point.Color{R: 40, A: 255})

	canvas := buildParent(children, n)
	require.Equal(t, 2*n, canvas.Bounds().Dx())

	at := func(x, y int) uint8 { return canvas.Pix[canvas.PixOffset(x, y)] }
	// World y grows upward, raster y downward: child 1 lands top-left,
	// child 0 bottom-left, child 3 top-right, child 2 bottom-right.
	assert.Equal(t, uint8(20), at(0, 0))
	assert.Equal(t, uint8(10), at(0, n))
	assert.Equal(t, uint8(40), at(n, 0))
	assert.Equal(t, uint8(30), at(n, n))

	// Missing children stay transparent.
	children[2] = nil
	canvas = buildParent(children, n)
	assert.Equal(t, uint8(0), canvas.Pix[canvas.PixOffset(n, n)+3])
}

func TestXrayMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	meta := &Meta{
		Version:      CurrentVersion,
		BoundingRect: quadtree.NewRect(mgl64.Vec2{-4, 8}, 64),
		TileSize:     256,
		DeepestLevel: 3,
		Nodes:        make(map[quadtree.NodeId]struct{}),
	}
	for _, s := range []string{"r", "r0", "r312"} {
		id, err := quadtree.ParseNodeId(s)
		require.NoError(t, err)
		meta.Nodes[id] = struct{}{}
	}
	require.NoError(t, meta.ToDisk(dir))

	parsed, err := FromDisk(dir)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, parsed.Version)
	assert.Equal(t, meta.BoundingRect.Min(), parsed.BoundingRect.Min())
	assert.Equal(t, meta.BoundingRect.EdgeLength(), parsed.BoundingRect.EdgeLength())
	assert.Equal(t, meta.TileSize, parsed.TileSize)
	assert.Equal(t, meta.DeepestLevel, parsed.DeepestLevel)
	assert.Equal(t, meta.Nodes, parsed.Nodes)
}

func buildTestOctree(t *testing.T) *octree.Tree {
	t.Helper()
	dir := t.TempDir()
	var points []point.Point
	// Two clusters in opposite tile quadrants.
	for i := 0; i < 600; i++ {
		points = append(points, point.Point{
			Position: mgl64.Vec3{1 + float64(i%5)*0.1, 1 + float64(i/5%5)*0.1, float64(i % 3)},
			Color:    point.Color{R: 255, A: 255},
		})
		points = append(points, point.Point{
			Position: mgl64.Vec3{9 + float64(i%5)*0.1, 9 + float64(i/5%5)*0.1, float64(i % 3)},
			Color:    point.Color{G: 255, A: 255},
		})
	}
	bbox := geom.NewAabb(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{10.01, 10.01, 3})
	_, err := octree.Build(nil, &point.SliceSource{Points: points}, octree.BuildOptions{
		OutputDirectory: dir,
		Resolution:      0.01,
		BoundingBox:     bbox,
	})
	require.NoError(t, err)
	tree, err := octree.Open(dir)
	require.NoError(t, err)
	return tree
}

func TestBuildPyramidEndToEnd(t *testing.T) {
	tree := buildTestOctree(t)
	out := t.TempDir()

	meta, err := BuildPyramid(nil, tree, BuildOptions{
		OutputDirectory: out,
		Resolution:      0.05,
		TileSizePx:      128,
		Coloring:        StrategyKind{Name: "xray"},
	})
	require.NoError(t, err)

	// 128 px * 0.05 m = 6.4 m tiles; one doubling covers the 10 m cloud.
	assert.Equal(t, uint8(1), meta.DeepestLevel)

	root, err := quadtree.ParseNodeId("r")
	require.NoError(t, err)
	_, ok := meta.Nodes[root]
	assert.True(t, ok, "root tile missing")

	// Every recorded tile exists as a PNG of the configured size; a parent
	// exists exactly when at least one child does.
	for id := range meta.Nodes {
		img, err := loadPng(TileImagePath(out, id))
		require.NoError(t, err, "tile %s", id)
		assert.Equal(t, 128, img.Bounds().Dx())
		assert.Equal(t, 128, img.Bounds().Dy())

		if id.Level() < meta.DeepestLevel {
			anyChild := false
			for i := 0; i < 4; i++ {
				if _, ok := meta.Nodes[id.ChildId(i)]; ok {
					anyChild = true
				}
			}
			assert.True(t, anyChild, "parent %s without children", id)
		}
	}

	// Tiles over empty space produce no file.
	files, err := os.ReadDir(out)
	require.NoError(t, err)
	pngCount := 0
	for _, f := range files {
		if f.Name() != MetaFilename {
			pngCount++
		}
	}
	assert.Equal(t, len(meta.Nodes), pngCount)

	// The meta round-trips.
	parsed, err := FromDisk(out)
	require.NoError(t, err)
	assert.Equal(t, meta.Nodes, parsed.Nodes)
}
