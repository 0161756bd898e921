package octree

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

func TestParallelIteratorDeliversEveryPoint(t *testing.T) {
	dir, _ := buildOutlierTree(t)
	tree, err := Open(dir)
	require.NoError(t, err)

	query := &PointQuery{
		Attributes: []string{"color"},
		Location:   AllPointsLocation(),
	}
	it := NewParallelIterator([]*Tree{tree}, query, 5000, 2, 2)

	var numPoints int64
	var numCalls int
	err = it.TryForEachBatch(func(batch *point.PointsBatch) error {
		require.Equal(t, batch.Len(), batch.Attributes["color"].Len())
		numPoints += int64(batch.Len())
		numCalls++
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 100_001, numPoints)
	assert.GreaterOrEqual(t, numCalls, 20)
}

func TestParallelIteratorPropagatesCallbackError(t *testing.T) {
	dir, _ := buildOutlierTree(t)
	tree, err := Open(dir)
	require.NoError(t, err)

	query := &PointQuery{
		Attributes: []string{"color"},
		Location:   AllPointsLocation(),
	}
	it := NewParallelIterator([]*Tree{tree}, query, 5000, 2, 2)

	sentinel := errors.New("enough")
	var delivered int64
	err = it.TryForEachBatch(func(batch *point.PointsBatch) error {
		delivered += int64(batch.Len())
		if delivered >= 13_000 {
			return sentinel
		}
		return nil
	})
	require.ErrorIs(t, err, sentinel)
	// The crossing batch holds at most batchSize points on top of the
	// sub-threshold prefix.
	assert.GreaterOrEqual(t, delivered, int64(13_000))
	assert.Less(t, delivered, int64(18_000))
}

func TestParallelIteratorAabbRestriction(t *testing.T) {
	dir, _ := buildOutlierTree(t)
	tree, err := Open(dir)
	require.NoError(t, err)

	// A box around the outlier only.
	location := AabbLocation(geom.NewAabb(
		mgl64.Vec3{-201, -41, 29},
		mgl64.Vec3{-199, -39, 31},
	))
	query := &PointQuery{
		Attributes: []string{"color"},
		Location:   location,
	}
	var numPoints int64
	err = NewParallelIterator([]*Tree{tree}, query, 5000, 2, 2).TryForEachBatch(
		func(batch *point.PointsBatch) error {
			numPoints += int64(batch.Len())
			return nil
		})
	require.NoError(t, err)
	assert.EqualValues(t, 1, numPoints)
}

func TestFilterIntervalRejectsUnknownAttribute(t *testing.T) {
	dir, _ := buildOutlierTree(t)
	tree, err := Open(dir)
	require.NoError(t, err)

	query := &PointQuery{
		Attributes:      []string{"color"},
		Location:        AllPointsLocation(),
		FilterIntervals: map[string]geom.ClosedInterval{"intensity": geom.NewClosedInterval(0, 1)},
	}
	err = NewParallelIterator([]*Tree{tree}, query, 5000, 1, 1).TryForEachBatch(
		func(*point.PointsBatch) error { return nil })
	assert.True(t, point.IsInvalidInput(err))
}

func TestVisibleNodesIdentityMatrix(t *testing.T) {
	dir := t.TempDir()
	points := make([]point.Point, 500)
	for i := range points {
		f := float64(i%10)/20 - 0.25
		points[i] = point.Point{
			Position: mgl64.Vec3{f, -f, f / 2},
			Color:    point.Color{B: 40, A: 255},
		}
	}
	bbox := geom.NewAabb(mgl64.Vec3{-0.25, -0.25, -0.25}, mgl64.Vec3{0.25, 0.25, 0.25})
	_, err := Build(nil, &point.SliceSource{Points: points}, BuildOptions{
		OutputDirectory: dir,
		Resolution:      0.001,
		BoundingBox:     bbox,
	})
	require.NoError(t, err)

	tree, err := Open(dir)
	require.NoError(t, err)
	visible, err := tree.VisibleNodes(mgl64.Ident4())
	require.NoError(t, err)
	require.NotEmpty(t, visible)

	// The root has the maximal screen estimate and comes first; ids are
	// unique; level 0 contributes nothing but the root.
	assert.Equal(t, RootId(), visible[0])
	seen := make(map[NodeId]bool)
	for _, id := range visible {
		assert.False(t, seen[id], "node %s yielded twice", id)
		seen[id] = true
	}

	// Nothing visible through a frustum far away from the cloud.
	translated := mgl64.Translate3D(100, 100, 100)
	farAway, err := tree.VisibleNodes(translated)
	require.NoError(t, err)
	assert.Empty(t, farAway)
}

func TestNodeDataAndCache(t *testing.T) {
	dir, meta := buildOutlierTree(t)
	tree, err := Open(dir)
	require.NoError(t, err)

	var someNode NodeId
	for id := range meta.Nodes {
		someNode = id
		break
	}
	data, err := tree.NodeData(someNode)
	require.NoError(t, err)
	nodeMeta := meta.Nodes[someNode]
	assert.EqualValues(t, 3*nodeMeta.NumPoints, len(data.Color))
	assert.EqualValues(t,
		int64(3*nodeMeta.PositionEncoding.BytesPerCoordinate())*nodeMeta.NumPoints,
		len(data.Position))

	_, err = tree.NodeData(mustParse(t, "r77777"))
	assert.True(t, point.IsNodeNotFound(err))

	// Reading the same node twice hits the cache and yields equal batches.
	query := &PointQuery{Attributes: []string{"color"}, Location: AllPointsLocation()}
	first, err := tree.PointsInNode(query, someNode, 1000)
	require.NoError(t, err)
	var firstCount int
	require.NoError(t, first.Drain(func(b *point.PointsBatch) error {
		firstCount += b.Len()
		return nil
	}))

	second, err := tree.PointsInNode(query, someNode, 1000)
	require.NoError(t, err)
	var secondCount int
	require.NoError(t, second.Drain(func(b *point.PointsBatch) error {
		secondCount += b.Len()
		return nil
	}))
	assert.Equal(t, firstCount, secondCount)
	assert.EqualValues(t, nodeMeta.NumPoints, firstCount)
}
