package octree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

// outlierCloud is 100_001 points: all at the origin except one far away.
func outlierCloud() ([]point.Point, geom.Aabb) {
	points := make([]point.Point, 100_001)
	for i := range points {
		points[i] = point.Point{Color: point.Color{R: 255, A: 255}}
	}
	outlier := mgl64.Vec3{-200, -40, 30}
	points[100_000].Position = outlier

	bbox := geom.NewAabb(mgl64.Vec3{}, mgl64.Vec3{})
	bbox.Grow(outlier)
	return points, bbox
}

func buildOutlierTree(t *testing.T) (string, *Meta) {
	t.Helper()
	dir := t.TempDir()
	points, bbox := outlierCloud()
	meta, err := Build(nil, &point.SliceSource{Points: points}, BuildOptions{
		OutputDirectory: dir,
		Resolution:      1.0,
		BoundingBox:     bbox,
		NumWorkers:      4,
	})
	require.NoError(t, err)
	return dir, meta
}

func TestBuildOutlierCloud(t *testing.T) {
	dir, meta := buildOutlierTree(t)

	// The two clusters force at least two materialized nodes.
	require.GreaterOrEqual(t, len(meta.Nodes), 2)

	var total int64
	for id, node := range meta.Nodes {
		require.Positive(t, node.NumPoints, "node %s", id)
		total += node.NumPoints
	}
	assert.EqualValues(t, 100_001, total)

	// The root cube covers the outlier.
	rootCube := geom.BoundingCube(&meta.BoundingBox)
	aabb := rootCube.ToAabb()
	assert.True(t, aabb.Contains(mgl64.Vec3{-200, -40, 30}))

	// Meta survives a disk round trip.
	tree, err := Open(dir)
	require.NoError(t, err)
	assert.Len(t, tree.Meta().Nodes, len(meta.Nodes))

	// Every materialized node has its streams on disk, sized per format.
	for id, node := range meta.Nodes {
		stem := filepath.Join(dir, id.String())
		colorInfo, err := os.Stat(stem + ".rgb")
		require.NoError(t, err)
		assert.EqualValues(t, 3*node.NumPoints, colorInfo.Size(), "node %s", id)

		xyzInfo, err := os.Stat(stem + ".xyz")
		require.NoError(t, err)
		assert.EqualValues(t,
			int64(3*node.PositionEncoding.BytesPerCoordinate())*node.NumPoints,
			xyzInfo.Size(), "node %s", id)
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	points, bbox := outlierCloud()
	_, err := Build(nil, &point.SliceSource{Points: points[:10]}, BuildOptions{
		OutputDirectory: t.TempDir(),
		Resolution:      0,
		BoundingBox:     bbox,
	})
	assert.True(t, point.IsInvalidInput(err))

	_, err = Build(nil, &point.SliceSource{Points: points[:10]}, BuildOptions{
		OutputDirectory: t.TempDir(),
		Resolution:      1,
		BoundingBox:     geom.ZeroAabb(),
	})
	assert.True(t, point.IsInvalidInput(err))
}

func TestBuildWritesNoMetaOnFailure(t *testing.T) {
	dir := t.TempDir()
	points, bbox := outlierCloud()
	// A directory where a node file should go makes the writer fail.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "r4.xyz"), 0o755))

	_, err := Build(nil, &point.SliceSource{Points: points}, BuildOptions{
		OutputDirectory: dir,
		Resolution:      1.0,
		BoundingBox:     bbox,
	})
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, MetaFilename))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildPreservesIntensity(t *testing.T) {
	dir := t.TempDir()
	points := make([]point.Point, 1000)
	for i := range points {
		points[i] = point.Point{
			Position:     mgl64.Vec3{float64(i % 10), float64(i / 10 % 10), float64(i / 100)},
			Color:        point.Color{G: 200, A: 255},
			Intensity:    float32(i),
			HasIntensity: true,
		}
	}
	bbox := geom.NewAabb(mgl64.Vec3{}, mgl64.Vec3{10, 10, 10})
	meta, err := Build(nil, &point.SliceSource{Points: points}, BuildOptions{
		OutputDirectory: dir,
		Resolution:      0.1,
		BoundingBox:     bbox,
	})
	require.NoError(t, err)
	assert.Equal(t, point.F32, meta.AttributeTypes["intensity"])

	tree, err := Open(dir)
	require.NoError(t, err)
	query := &PointQuery{
		Attributes: []string{"color", "intensity"},
		Location:   AllPointsLocation(),
	}
	var n int
	err = NewParallelIterator([]*Tree{tree}, query, 100, 2, 2).TryForEachBatch(
		func(batch *point.PointsBatch) error {
			intensities, err := point.F32Values(batch.Attributes["intensity"])
			if err != nil {
				return err
			}
			n += len(intensities)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
}
